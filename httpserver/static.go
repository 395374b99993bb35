package httpserver

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Statics serves files out of a webroot directory. The Router only decides
// which requests reach it and does not strip the matched prefix, so Statics
// resolves the whole normalized request path, prefix included, under the
// webroot (a request for "/html/a.css" opens "<webroot>/html/a.css").
type Statics struct {
	webroot string
	log     logrus.FieldLogger
}

// NewStatics returns a handler serving files under webroot.
func NewStatics(webroot string, log logrus.FieldLogger) *Statics {
	return &Statics{webroot: webroot, log: log}
}

// Serve implements Handler.
func (s *Statics) Serve(req *Request, res *FreshResponse) {
	if err := s.serveFile(req, res); err != nil {
		s.log.Warnf("error serving a file: %v", err)
	}
}

func (s *Statics) serveFile(req *Request, res *FreshResponse) error {
	relative := strings.TrimPrefix(string(req.RequestURI()), "/")
	requested := filepath.Join(s.webroot, relative)

	resolved, err := filepath.EvalSymlinks(requested)
	if err != nil {
		if os.IsNotExist(err) {
			Error404(res)
		} else {
			Error500(res)
		}
		return err
	}

	webrootAbs, err := filepath.Abs(s.webroot)
	if err != nil {
		Error500(res)
		return err
	}

	if resolved != webrootAbs && !strings.HasPrefix(resolved, webrootAbs+string(filepath.Separator)) {
		Error403(res)
		return fmt.Errorf("httpserver: %q escapes webroot %q", resolved, webrootAbs)
	}

	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			Error404(res)
		} else {
			Error500(res)
		}
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		Error500(res)
		return err
	}

	if info.IsDir() {
		Error403(res)
		return fmt.Errorf("httpserver: %q is a directory", resolved)
	}

	contentType := mime.TypeByExtension(filepath.Ext(resolved))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res.Headers().InsertString("Content-Type", contentType)
	res.Headers().InsertString("Content-Length", strconv.FormatInt(info.Size(), 10))

	return res.OfStream(file)
}
