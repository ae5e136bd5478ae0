package server

import (
	"io/ioutil"
	"path"
	"path/filepath"
	"strings"
)

// Usage is the body of GET / when no asset responder provides an index page.
const Usage = `USAGE

    POST /

        accepts raw data in the body of the request and responds with an
        identifier naming the stored paste

    GET /<id>

        retrieves the content of the paste named <id>

EXAMPLES

    $ curl --data-binary @file.txt http://localhost:8000/
    $ curl http://localhost:8000/<id>

Requests are read with a single bounded read; content past the buffer
capacity is silently dropped.
`

// AssetResponder serves pages other than the paste routes. Asset returns the
// body for a request target and whether there is one.
type AssetResponder interface {
	Asset(target string) (body []byte, ok bool)
}

// DirAssets serves files from a directory. The target "/" maps to index.html.
type DirAssets struct {
	dir string
}

func NewDirAssets(dir string) *DirAssets {
	return &DirAssets{dir: dir}
}

func (a *DirAssets) Asset(target string) ([]byte, bool) {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	// Cleaning a rooted path removes any .. that would escape the directory.
	name := path.Clean("/" + target)
	if name == "/" {
		name = "/index.html"
	}
	body, err := ioutil.ReadFile(filepath.Join(a.dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, false
	}
	return body, true
}
