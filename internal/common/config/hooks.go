package config

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		TrimmedStringSliceHookFunc(","),
	)),
}

// TrimmedStringSliceHookFunc splits a string on sep into a []string, dropping surrounding
// whitespace and empty elements. Environment variables such as "alpha, beta," decode to
// []string{"alpha", "beta"}.
func TrimmedStringSliceHookFunc(sep string) mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf([]string{}) {
			return data, nil
		}
		return SplitList(data.(string), sep), nil
	}
}

func SplitList(s string, sep string) []string {
	result := []string{}
	for _, element := range strings.Split(s, sep) {
		if element = strings.TrimSpace(element); element != "" {
			result = append(result, element)
		}
	}
	return result
}
