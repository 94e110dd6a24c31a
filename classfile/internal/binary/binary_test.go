package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderBigEndian(t *testing.T) {
	data := []byte{
		0xCA, 0xFE,
		0xFF, 0xFE,
		0xCA, 0xFE, 0xBA, 0xBE,
		0xFF, 0xFF, 0xFF, 0xFF,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02,
	}
	r := NewReader(data)

	if v, err := r.ReadU2(); err != nil || v != 0xCAFE {
		t.Errorf("ReadU2: got 0x%x, %v", v, err)
	}
	if v, err := r.ReadS2(); err != nil || v != -2 {
		t.Errorf("ReadS2: got %d, %v", v, err)
	}
	if v, err := r.ReadU4(); err != nil || v != 0xCAFEBABE {
		t.Errorf("ReadU4: got 0x%x, %v", v, err)
	}
	if v, err := r.ReadS4(); err != nil || v != -1 {
		t.Errorf("ReadS4: got %d, %v", v, err)
	}
	if v, err := r.ReadU8(); err != nil || v != 1<<32|2 {
		t.Errorf("ReadU8: got 0x%x, %v", v, err)
	}
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

func TestReaderTruncated(t *testing.T) {
	tests := []struct {
		name string
		read func(r *Reader) error
	}{
		{"u1", func(r *Reader) error { _, err := r.ReadU1(); return err }},
		{"u2", func(r *Reader) error { _, err := r.ReadU2(); return err }},
		{"u4", func(r *Reader) error { _, err := r.ReadU4(); return err }},
		{"u8", func(r *Reader) error { _, err := r.ReadU8(); return err }},
		{"skip", func(r *Reader) error { return r.Skip(2) }},
		{"negative", func(r *Reader) error { _, err := r.ReadBytes(-1); return err }},
		{"reset", func(r *Reader) error { return r.Reset(5) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader([]byte{0x01})
			if tt.name != "u1" {
				_, _ = r.ReadU1()
			}
			if err := tt.read(r); !errors.Is(err, ErrTruncated) {
				t.Errorf("got %v, want ErrTruncated", err)
			}
		})
	}
}

func TestReaderWrapError(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	_ = r.Skip(1)
	err := r.WrapError("constant_pool", ErrTruncated)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Position != 1 || pe.Section != "constant_pool" {
		t.Errorf("got %+v", pe)
	}
	if !errors.Is(err, ErrTruncated) {
		t.Error("ParseError must unwrap to its cause")
	}
	if got := err.Error(); got != "classfile: constant_pool at position 1: classfile: unexpected end of input" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Byte(0x07)
	w.WriteU2(0xBEEF)
	w.WriteU4(0xCAFEBABE)
	w.WriteU8(0x0102030405060708)
	w.WriteBytes([]byte("ok"))

	want := []byte{
		0x07,
		0xBE, 0xEF,
		0xCA, 0xFE, 0xBA, 0xBE,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		'o', 'k',
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes: got % x, want % x", w.Bytes(), want)
	}
	if w.Len() != len(want) {
		t.Errorf("Len: got %d, want %d", w.Len(), len(want))
	}

	r := NewReader(w.Bytes())
	if err := r.Reset(3); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.ReadU4(); v != 0xCAFEBABE {
		t.Errorf("ReadU4 after Reset: got 0x%x", v)
	}
}
