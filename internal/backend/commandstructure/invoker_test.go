package commandstructure

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCommandInvoker_RunsInOrder(t *testing.T) {
	invoker := NewCommandInvoker([]Command{
		&stubCommand{name: "Convert", tag: "|png"},
		&stubCommand{name: "Scale", tag: "|320x240"},
	})

	result, err := invoker.Execute([]byte("upload"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(result) != "upload|png|320x240" {
		t.Errorf("unexpected result %q", result)
	}
	if names := invoker.Names(); !reflect.DeepEqual(names, []string{"Convert", "Scale"}) {
		t.Errorf("unexpected names %v", names)
	}
}

func TestCommandInvoker_EmptyPipelinePassesThrough(t *testing.T) {
	result, err := NewCommandInvoker(nil).Execute([]byte("placeholder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(result) != "placeholder" {
		t.Errorf("expected input back, got %q", result)
	}
}

func TestCommandInvoker_StopsAtFailingCommand(t *testing.T) {
	third := &stubCommand{name: "Overlay", tag: "|never"}
	invoker := NewCommandInvoker([]Command{
		&stubCommand{name: "Convert", tag: "|png"},
		&stubCommand{name: "Scale", err: errors.New("not a PNG")},
		third,
	})

	_, err := invoker.Execute([]byte("upload"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Scale (index 1)") {
		t.Errorf("error should name the failing command, got %v", err)
	}
}

func TestNewCommandInvokerFromConfig(t *testing.T) {
	registry := NewCommandRegistry()
	if err := registry.Register("Tagger", stubFactory("Tagger")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	invoker, err := NewCommandInvokerFromConfig(registry, []CommandConfig{
		{Name: "Tagger", Params: map[string]any{"tag": "-a"}},
		{Name: "Tagger", Params: map[string]any{"tag": "-b"}},
	})
	if err != nil {
		t.Fatalf("NewCommandInvokerFromConfig failed: %v", err)
	}
	result, err := invoker.Execute([]byte("x"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(result) != "x-a-b" {
		t.Errorf("unexpected result %q", result)
	}

	if _, err := NewCommandInvokerFromConfig(registry, []CommandConfig{{Name: "Tagger"}}); err == nil {
		t.Error("expected error for missing parameter")
	}
	if _, err := NewCommandInvokerFromConfig(registry, []CommandConfig{{Name: "Missing"}}); err == nil {
		t.Error("expected error for unknown command")
	}
}
