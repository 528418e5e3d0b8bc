package entrycache

import (
	"context"
	"time"
)

type nopProvider struct{}

func (nopProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nopProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return true, nil
}
func (nopProvider) Del(context.Context, string) error { return nil }
func (nopProvider) Close(context.Context) error       { return nil }

type stringCodec struct{}

func (stringCodec) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (stringCodec) Decode(b []byte) (string, error) { return string(b), nil }
