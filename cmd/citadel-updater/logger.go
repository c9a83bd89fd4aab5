package main

import (
	"strings"

	"github.com/coreos/go-semver/semver"
	"k8s.io/klog/v2"
)

// klogLogger implements transport.Logger (and is reused as-is by
// orchestrator, which accepts the same interface) on top of klog, the
// logging library used by the armored-witness OS's own RPC update client.
type klogLogger struct{}

func (klogLogger) Debug(msg string, kv ...interface{}) {
	klog.V(1).InfoS(msg, kv...)
}

// Info logs msg/kv as-is, except for the orchestrator's version report,
// where the device's raw ASCII version, if it parses as a semver once a
// leading "v" is stripped, is logged together with its parsed form.
func (klogLogger) Info(msg string, kv ...interface{}) {
	if msg == "device reports version" {
		if raw, ok := versionValue(kv); ok {
			if v, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(raw), "v")); err == nil {
				klog.InfoS(msg, "version", raw, "semver", v.String())
				return
			}
		}
	}
	klog.InfoS(msg, kv...)
}

func (klogLogger) Error(msg string, kv ...interface{}) {
	klog.ErrorS(nil, msg, kv...)
}

func versionValue(kv []interface{}) (string, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == "version" {
			if s, ok := kv[i+1].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
