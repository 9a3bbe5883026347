package ontology

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Parse decodes a document, choosing the syntax from the file extension:
// .cue is CUE, .yaml, .yml and .json are YAML.
func Parse(name string, data []byte) (*Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".cue":
		return ParseCUE(name, data)
	case ".yaml", ".yml", ".json":
		return ParseYAML(name, data)
	}
	return nil, &LoadError{Code: ErrCodeUnsupported, Path: name, Message: "unsupported file type, want .yaml, .yml, .json or .cue"}
}

// ParseYAML decodes a YAML document. Unknown fields are errors.
func ParseYAML(name string, data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	doc := &Document{}
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, withPath(name, ErrCodeParse, err)
	}
	doc.Name = name
	return doc, nil
}

// ParseCUE evaluates a CUE document and decodes its concrete value like
// a YAML one. CUE adds definitions, references and constraints on top of
// the plain document shape.
func ParseCUE(name string, data []byte) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, cueError(name, ErrCodeParse, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(name, ErrCodeSchema, err)
	}
	js, err := v.MarshalJSON()
	if err != nil {
		return nil, cueError(name, ErrCodeSchema, err)
	}
	return ParseYAML(name, js)
}

func cueError(name, code string, err error) error {
	le := &LoadError{Code: code, Path: name, Message: cueerrors.Details(err, nil), Err: err}
	if pos := cueerrors.Positions(err); len(pos) > 0 && pos[0].IsValid() {
		le.Line = pos[0].Line()
		le.Column = pos[0].Column()
	}
	le.Message = strings.TrimSpace(le.Message)
	if le.Message == "" {
		le.Message = fmt.Sprint(err)
	}
	return le
}
