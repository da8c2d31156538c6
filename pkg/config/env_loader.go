/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/carverauto/modbus-poller/pkg/logger"
)

var (
	ErrDstMustBeNonNilPointer   = errors.New("dst must be a non-nil pointer")
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
	errUnsupportedEnvField      = errors.New("unsupported field type")
)

//nolint:gochecknoglobals // reflect type lookup
var jsonUnmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

// EnvConfigLoader reads <prefix>CONFIG_JSON as a base document and then
// applies one variable per leaf field on top. Nested fields join their JSON
// tags with underscores: MODBUS_POLLER_NATS_URL sets Nats.URL.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{logger: log, prefix: prefix}
}

func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	if v.Elem().Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	if raw := os.Getenv(e.prefix + "CONFIG_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}
	}

	return e.loadStruct(v.Elem(), e.prefix)
}

func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")

		// embedded structs are flattened, as encoding/json does
		if name == "" && t.Field(i).Anonymous && field.Kind() == reflect.Struct {
			if err := e.loadStruct(field, prefix); err != nil {
				return err
			}

			continue
		}

		if name == "" || name == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(name)

		if err := e.setField(field, envName); err != nil {
			return err
		}
	}

	return nil
}

func (e *EnvConfigLoader) setField(field reflect.Value, envName string) error {
	value, set := os.LookupEnv(envName)

	if set && reflect.PointerTo(field.Type()).Implements(jsonUnmarshalerType) {
		return e.unmarshalField(field, envName, strconv.Quote(value))
	}

	switch field.Kind() {
	case reflect.Struct:
		return e.loadStruct(field, envName+"_")
	case reflect.Ptr:
		if field.Type().Elem().Kind() != reflect.Struct {
			break
		}

		if !e.hasPrefix(envName + "_") {
			return nil
		}

		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}

		return e.loadStruct(field.Elem(), envName+"_")
	default:
	}

	if !set {
		return nil
	}

	if err := setScalar(field, value); err != nil {
		return fmt.Errorf("%s: %w", envName, err)
	}

	if e.logger != nil {
		e.logger.Debug().Str("env", envName).Msg("Loaded value from environment variable")
	}

	return nil
}

func (*EnvConfigLoader) unmarshalField(field reflect.Value, envName, payload string) error {
	if err := json.Unmarshal([]byte(payload), field.Addr().Interface()); err != nil {
		return fmt.Errorf("%s: %w", envName, err)
	}

	return nil
}

func (*EnvConfigLoader) hasPrefix(prefix string) bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}

	return false
}

func setScalar(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return json.Unmarshal([]byte(value), field.Addr().Interface())
		}

		parts := strings.Split(value, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))

		for _, p := range parts {
			out = reflect.Append(out, reflect.ValueOf(strings.TrimSpace(p)).Convert(field.Type().Elem()))
		}

		field.Set(out)
	case reflect.Map:
		return json.Unmarshal([]byte(value), field.Addr().Interface())
	default:
		return fmt.Errorf("%w: %s", errUnsupportedEnvField, field.Kind())
	}

	return nil
}
