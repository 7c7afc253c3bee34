package bindgen

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lexCacheSize bounds the number of lexed headers a Generator keeps.
const lexCacheSize = 256

// lexFile lexes the header at path. Headers are read once while resolving
// the HeaderSet and again while generating, so results are kept until the
// file changes.
func (g *Generator) lexFile(path string) (*lexed, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Kind: ErrParseFailed, Path: path, Err: err}
	}
	key := fmt.Sprintf("%s\x00%d\x00%d", path, fi.Size(), fi.ModTime().UnixNano())
	if g.cache == nil {
		g.cache, err = lru.New[string, *lexed](lexCacheSize)
		if err != nil {
			return nil, err
		}
	}
	if lx, ok := g.cache.Get(key); ok {
		return lx, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ErrParseFailed, Path: path, Err: err}
	}
	lx, err := lex(path, string(src))
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, lx)
	return lx, nil
}
