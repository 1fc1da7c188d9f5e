package config

import "reflect"

// redacted replaces every non-empty field tagged `secret:"true"`.
const redacted = "***"

// RedactedConfig returns a deep enough copy of cfg to print or log: secret
// fields are masked and slices are cloned, so the result shares no mutable
// state with cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	redactValue(reflect.ValueOf(&out).Elem())
	return out
}

func redactValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			f := v.Field(i)
			if !f.CanSet() {
				continue
			}
			if t.Field(i).Tag.Get("secret") == "true" && f.Kind() == reflect.String {
				if f.String() != "" {
					f.SetString(redacted)
				}
				continue
			}
			redactValue(f)
		}
	case reflect.Slice:
		if v.IsNil() || !v.CanSet() {
			return
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(clone, v)
		v.Set(clone)
		for i := range v.Len() {
			redactValue(v.Index(i))
		}
	}
}
