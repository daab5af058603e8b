package decode

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 宽松解码（默认 true）："123" -> int, "true" -> bool
	WeaklyTypedInput bool
	// 读取的 struct tag，默认 yaml
	TagName string
	// 出现目标结构体不认识的 key 时报错
	ErrorUnused bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
		TagName:          "yaml",
	}
}

// DecodeMap decodes a loosely typed map (YAML document, env overlay) into T.
// Durations accept "5s" style strings, lists accept comma separated strings.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	var out T
	if err := DecodeInto(m, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeInto is DecodeMap for a pre-filled target; fields absent from m keep their value.
func DecodeInto(m map[string]any, target any, opts ...Options) error {
	if m == nil {
		return fmt.Errorf("map is nil")
	}
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
		if cfg.TagName == "" {
			cfg.TagName = "yaml"
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          cfg.TagName,
		Result:           target,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		ErrorUnused:      cfg.ErrorUnused,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			floatToIntHook(),
		),
	})
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("decode map: %w", err)
	}
	return nil
}

// SetPath writes v at a dotted path ("feed.url"), creating nested maps on the way.
func SetPath(m map[string]any, path []string, v any) {
	cur := m
	for i, k := range path {
		if i == len(path)-1 {
			cur[k] = v
			return
		}
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[k] = next
		}
		cur = next
	}
}

// floatToIntHook：把 float64 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}
