package faults

import (
	"errors"
	"fmt"
)

// 引擎的三类同步错误：输入数值非法、策略规则缺失、K 线数量不足。
// 所有错误都在检测点立即返回，引擎内部不做重试。

// ValidationError 表示数值输入非法或相互矛盾。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConfigurationError 表示策略文本缺少必要的 BUY/SELL 规则。
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

// InsufficientDataError 表示请求区间生成的 K 线不足以完成指标预热。
type InsufficientDataError struct {
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("K 线数量不足：需要至少 %d 条，只有 %d 条", e.Need, e.Got)
}

func Validationf(field, format string, v ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, v...)}
}

func Configurationf(format string, v ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, v...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}
