package abort

import (
	"context"
	"errors"
	"testing"
)

func TestAbortCallsDieFunction(t *testing.T) {
	var got string
	prev := SetDieFunction(func(msg string) { got = msg })
	defer SetDieFunction(prev)

	Abort(context.Background(), errors.New("task 3 completed twice"))
	if got != "task 3 completed twice" {
		t.Fatalf("unexpected die message %q", got)
	}
}

func TestDefaultDiePanics(t *testing.T) {
	prev := SetDieFunction(nil)
	defer SetDieFunction(prev)

	defer func() {
		if recover() == nil {
			t.Fatal("expected default die function to panic")
		}
	}()
	Abort(context.Background(), errors.New("boom"))
}
