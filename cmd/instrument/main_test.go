package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/classfile/classtest"
	"github.com/wippyai/jvm-instrument/instrument"
)

func writeClass(t *testing.T, dir, name string, c *classtest.Class) string {
	t.Helper()
	data, err := c.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleClasses(t *testing.T) string {
	dir := t.TempDir()
	svc := classtest.New("com/acme/Service").DefaultConstructor()
	svc.Method(classfile.AccPublic, "handle", "(I)I").Body(1, 2,
		classfile.Local(classfile.OpIload, 1),
		classfile.Op(classfile.OpIreturn),
	)
	writeClass(t, dir, "com/acme/Service.class", svc)
	writeClass(t, dir, "com/acme/Other.class", classtest.New("com/acme/Other").Super("com/acme/Service").DefaultConstructor())
	return dir
}

func TestClassFiles(t *testing.T) {
	dir := sampleClasses(t)
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := classFiles("", dir)
	if err != nil {
		t.Fatalf("classFiles: %v", err)
	}
	if len(files) != 2 || !strings.HasSuffix(files[0], "Other.class") || !strings.HasSuffix(files[1], "Service.class") {
		t.Errorf("files = %v", files)
	}
}

func TestRunAnalyze(t *testing.T) {
	dir := sampleClasses(t)
	files, err := classFiles("", dir)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runAnalyze(&out, files); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	for _, want := range []string{
		"class com.acme.Service",
		"int handle(int)",
		"extends com.acme.Service",
		"subclasses: com.acme.Other",
		"superclass chain: com.acme.Service, java.lang.Object",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestBatchInstrumentsDirectory(t *testing.T) {
	dir := sampleClasses(t)
	out := t.TempDir()
	files, err := classFiles("", dir)
	if err != nil {
		t.Fatal(err)
	}
	b := &batch{
		root:   dir,
		out:    out,
		jobs:   2,
		disasm: true,
		logger: zap.NewNop(),
		opts:   instrument.Options{Dispatcher: "t/Hooks"},
		configs: []instrument.Config{{
			Class: "com.acme.*",
			Methods: []instrument.MethodMatch{{
				Name: "handle", ReturnType: "int", Parameters: []string{"int"},
				Points: []instrument.Point{instrument.SensorPoint{ID: 1}},
			}},
		}},
	}
	var report bytes.Buffer
	if err := b.run(context.Background(), &report, files); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(report.String(), "1 of 2 classes instrumented") {
		t.Errorf("report = %s", report.String())
	}
	if !strings.Contains(report.String(), "t/Hooks.dispatchMethodBeforeBody") {
		t.Errorf("listing lacks the hook call:\n%s", report.String())
	}

	data, err := os.ReadFile(filepath.Join(out, "com/acme/Service.class"))
	if err != nil {
		t.Fatalf("instrumented class not written: %v", err)
	}
	vm := classtest.NewVM("t/Hooks")
	if err := vm.Load(data); err != nil {
		t.Fatal(err)
	}
	got, err := vm.Invoke("com/acme/Service", "handle", "(I)I", vm.NewObject("com/acme/Service"), int32(4))
	if err != nil || got != int32(4) {
		t.Fatalf("handle = %v, %v", got, err)
	}
	if len(vm.Calls) != 3 {
		t.Errorf("hooks = %v", vm.HookNames())
	}
	if _, err := os.Stat(filepath.Join(out, "com/acme/Other.class")); !os.IsNotExist(err) {
		t.Error("unmodified classes must not be written")
	}
}

func TestBatchStopsOnError(t *testing.T) {
	dir := sampleClasses(t)
	if err := os.WriteFile(filepath.Join(dir, "Broken.class"), []byte{0xCA, 0xFE}, 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := classFiles("", dir)
	if err != nil {
		t.Fatal(err)
	}
	b := &batch{root: dir, jobs: 1, logger: zap.NewNop(), configs: []instrument.Config{}}
	err = b.run(context.Background(), &bytes.Buffer{}, files)
	if err == nil || !strings.Contains(err.Error(), "Broken.class") {
		t.Errorf("error = %v, want the broken file named", err)
	}
}
