package runtime

import (
	"strings"
	"testing"
)

// TestHeaderDefinesBackendSymbols guards against the backend and the
// runtime header drifting apart: every rt_*/_rt_* name internal/backend
// emits calls to must actually be defined here.
func TestHeaderDefinesBackendSymbols(t *testing.T) {
	symbols := []string{
		"l0_int", "l0_byte", "l0_bool", "l0_string",
		"_rt_iadd", "_rt_isub", "_rt_imul", "_rt_idiv", "_rt_imod",
		"_rt_narrow_byte", "_rt_narrow_int",
		"rt_string_retain", "rt_string_release", "rt_string_eq",
		"_rt_alloc_obj", "_rt_drop",
		"_rt_check_nonnull", "_rt_panic_unwrap",
		"_rt_init_args",
		"L0_STRING_CONST",
	}
	for _, s := range symbols {
		if !strings.Contains(Header, s) {
			t.Errorf("runtime header is missing symbol %q", s)
		}
	}
}

func TestHeaderIsWellFormedPreprocessorBlock(t *testing.T) {
	if !strings.Contains(Header, "#ifndef L0_RUNTIME_H") || !strings.Contains(Header, "#endif") {
		t.Fatalf("header missing include guard")
	}
}
