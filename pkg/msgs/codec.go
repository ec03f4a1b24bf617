package msgs

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Decode fills out, a pointer to an interface struct, from a flow payload.
// Keys match ROS field names (snake_case) or Go field names, case-insensitively.
func Decode(payload map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "rosname",
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return foldName(mapKey) == foldName(fieldName)
		},
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(dec.Decode(payload), "decode payload")
}

// Encode converts an interface struct into a flow payload keyed by ROS field names.
func Encode(in interface{}) (map[string]interface{}, error) {
	v := reflect.ValueOf(in)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return map[string]interface{}{}, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, errors.Errorf("encode: expected struct, got %s", v.Kind())
	}
	out, _ := encodeValue(v).(map[string]interface{})
	return out, nil
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

func encodeValue(v reflect.Value) interface{} {
	switch {
	case v.Type() == timeType:
		return v.Interface().(time.Time).Format(time.RFC3339Nano)
	case v.Type() == durationType:
		return v.Interface().(time.Duration).String()
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return encodeValue(v.Elem())
	case reflect.Struct:
		out := map[string]interface{}{}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Type == packageType || f.PkgPath != "" {
				continue
			}
			key := f.Tag.Get("rosname")
			if key == "" {
				key = snakeCase(f.Name)
			}
			out[key] = encodeValue(v.Field(i))
		}
		return out
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return b
		}
		items := make([]interface{}, v.Len())
		for i := range items {
			items[i] = encodeValue(v.Index(i))
		}
		return items
	default:
		return v.Interface()
	}
}

func foldName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

// snakeCase turns a Go field name into the ROS field name: FrameId -> frame_id,
// ID -> id, PercentComplete -> percent_complete.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
