package policy

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// Language identifies a dispatch target for Phase B structural analysis.
// Languages not in this set fall back to textual-only scanning (spec
// §4.5 "per-language error-handling laws").
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangUnknown    Language = ""
)

// LanguageForPath dispatches by file extension only; the engine never
// sniffs content to guess a language.
func LanguageForPath(path string) Language {
	switch {
	case hasSuffix(path, ".go"):
		return LangGo
	case hasSuffix(path, ".js"), hasSuffix(path, ".mjs"), hasSuffix(path, ".jsx"):
		return LangJavaScript
	case hasSuffix(path, ".py"):
		return LangPython
	default:
		return LangUnknown
	}
}

func hasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}

// parserPools holds one sync.Pool per language; tree-sitter parsers are
// not safe for concurrent reuse without external synchronization, hence
// pooling rather than a single shared instance (grounded on
// ingestion.TreeSitterParser's goPool/pyPool/jsPool).
type parserPools struct {
	goPool sync.Pool
	jsPool sync.Pool
	pyPool sync.Pool
	once   sync.Once
}

var pools = &parserPools{}

func (p *parserPools) init() {
	p.once.Do(func() {
		p.goPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(golang.GetLanguage())
			return parser
		}
		p.jsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(javascript.GetLanguage())
			return parser
		}
		p.pyPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(python.GetLanguage())
			return parser
		}
	})
}

func (p *parserPools) get(lang Language) (*sitter.Parser, func()) {
	p.init()
	var pool *sync.Pool
	switch lang {
	case LangGo:
		pool = &p.goPool
	case LangJavaScript:
		pool = &p.jsPool
	case LangPython:
		pool = &p.pyPool
	default:
		return nil, func() {}
	}
	parser := pool.Get().(*sitter.Parser)
	return parser, func() { pool.Put(parser) }
}
