package frame

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"path"
)

type (
	// Frame identifies a function by its name and where it is defined.
	// Two calls share an identity when all three fields are equal.
	Frame struct {
		Function string `json:"function"`
		File     string `json:"filename,omitempty"`
		Line     uint32 `json:"lineno,omitempty"`
	}
)

// Unknown returns the identity used for a method id missing from a trace.
func Unknown(id uint64) Frame {
	return Frame{
		Function: fmt.Sprintf("unknown (id %d)", id),
		File:     "unknown",
	}
}

func (f Frame) WriteToHash(h hash.Hash) {
	var s string
	if f.File != "" {
		s = f.File
	} else {
		s = "-"
	}
	h.Write([]byte(s))
	if f.Function != "" {
		s = f.Function
	} else {
		s = "-"
	}
	h.Write([]byte(s))
	buffer := make([]byte, 4)
	binary.LittleEndian.PutUint32(buffer, f.Line)
	h.Write(buffer)
}

// Fingerprint returns a stable hash of the identity.
func (f Frame) Fingerprint() uint64 {
	h := fnv.New64()
	f.WriteToHash(h)
	return h.Sum64()
}

// FileBaseName returns the basename of the defining file.
func (f Frame) FileBaseName() string {
	if f.File == "" {
		return ""
	}
	return path.Base(f.File)
}

// Less orders identities by name, then file, then line.
func (f Frame) Less(o Frame) bool {
	if f.Function != o.Function {
		return f.Function < o.Function
	}
	if f.File != o.File {
		return f.File < o.File
	}
	return f.Line < o.Line
}

func (f Frame) String() string {
	if f.File == "" {
		return f.Function
	}
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}
