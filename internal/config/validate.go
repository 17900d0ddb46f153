package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce    sync.Once
	structValidator *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// 错误信息使用 yaml 字段名。
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// validate 校验合并后的配置；多个字段出错时合并成一条按路径排序的错误。
func validate(cfg Config) error {
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fieldPath(fe), friendlyMessage(fe)))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "；"))
}

// fieldPath 把 "Config.ingest.workers" 变成 "ingest.workers"。
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless", "required_with":
		return "不能为空"
	case "oneof":
		return "只能是 " + strings.ReplaceAll(fe.Param(), " ", "|") + fmt.Sprintf("，实际是 %q", fmt.Sprint(fe.Value()))
	case "gte":
		return "必须 >= " + fe.Param()
	case "lte":
		return "必须 <= " + fe.Param()
	case "url", "http_url":
		return fmt.Sprintf("不是合法 URL：%q", fmt.Sprint(fe.Value()))
	case "hostname_port":
		return fmt.Sprintf("必须是 host:port，实际是 %q", fmt.Sprint(fe.Value()))
	default:
		return "不合法（" + fe.Tag() + "）"
	}
}
