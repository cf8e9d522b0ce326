package wfs

import (
	"errors"
	"fmt"
)

// ErrBadStatus：上游返回非 200
var ErrBadStatus = errors.New("unexpected http status")

// FetchError：一次 WFS 请求失败
// Status 为 HTTP 状态行；传输层失败时为 "error"，解析失败时为 "parsererror"
type FetchError struct {
	Op       string
	TypeName string
	Status   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("wfs %s %s: status %s: %v", e.Op, e.TypeName, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
