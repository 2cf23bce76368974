package builtins

import (
	"os"

	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// Native is one CALL_NATIVE-dispatchable function: it receives its
// already-popped arguments and returns a single result value.
type Native func(args []value.Value) (value.Value, error)

// Natives builds the filesystem primitive table, bound to h so file_read
// can materialize its result as a heap Char array. A failed operation
// returns a sentinel value (0) rather than raising a VM error, so scripts
// can branch on failure instead of crashing.
func Natives(h *value.Heap) map[string]Native {
	return map[string]Native{
		"file_read":   fileRead(h),
		"file_write":  fileWrite(h),
		"file_exists": fileExists(h),
		"file_remove": fileRemove(h),
	}
}

func pathArg(h *value.Heap, args []value.Value, i int) (string, error) {
	if i >= len(args) || !args[i].IsHeapRef() {
		return "", rxerr.New(rxerr.TypeMismatch, "expected a string argument")
	}
	s, ok := StringOf(h, args[i].AsHeapRef())
	if !ok {
		return "", rxerr.New(rxerr.TypeMismatch, "expected a Char array")
	}
	return s, nil
}

func fileRead(h *value.Heap) Native {
	return func(args []value.Value) (value.Value, error) {
		path, err := pathArg(h, args, 0)
		if err != nil {
			return value.Value{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return value.Int(0), nil
		}
		return value.HeapRef(MakeString(h, string(data))), nil
	}
}

func fileWrite(h *value.Heap) Native {
	return func(args []value.Value) (value.Value, error) {
		path, err := pathArg(h, args, 0)
		if err != nil {
			return value.Value{}, err
		}
		contents, err := pathArg(h, args, 1)
		if err != nil {
			return value.Value{}, err
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			return value.Int(0), nil
		}
		return value.Int(int32(len(contents))), nil
	}
}

func fileExists(h *value.Heap) Native {
	return func(args []value.Value) (value.Value, error) {
		path, err := pathArg(h, args, 0)
		if err != nil {
			return value.Value{}, err
		}
		if _, err := os.Stat(path); err != nil {
			return value.Int(0), nil
		}
		return value.Int(1), nil
	}
}

func fileRemove(h *value.Heap) Native {
	return func(args []value.Value) (value.Value, error) {
		path, err := pathArg(h, args, 0)
		if err != nil {
			return value.Value{}, err
		}
		if err := os.Remove(path); err != nil {
			return value.Int(0), nil
		}
		return value.Int(1), nil
	}
}
