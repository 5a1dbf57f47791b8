package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/WhileEndless/go-docwire/pkg/message"
	"github.com/WhileEndless/go-docwire/pkg/rawhttp"
	"github.com/WhileEndless/go-docwire/pkg/search"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *env) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "%s\n", data)
	return err
}

func (e *env) get(ctx context.Context, args []string) error {
	id, err := oneArg(e.flags("get"), args, "document id")
	if err != nil {
		return err
	}
	s, err := e.store(ctx)
	if err != nil {
		return err
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return e.printJSON(doc)
}

func (e *env) put(ctx context.Context, args []string) error {
	fs := e.flags("put")
	rev := fs.String("rev", "", "revision being replaced")
	file := fs.String("file", "-", "JSON document to store, - for stdin")
	id, err := oneArg(fs, args, "document id")
	if err != nil {
		return err
	}

	in := e.stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("put: %s is not valid JSON", *file)
	}

	s, err := e.store(ctx)
	if err != nil {
		return err
	}
	newRev, err := s.Put(ctx, id, *rev, jsoniter.RawMessage(data))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %s\n", id, newRev)
	return nil
}

func (e *env) delete(ctx context.Context, args []string) error {
	fs := e.flags("delete")
	rev := fs.String("rev", "", "revision to delete (required)")
	id, err := oneArg(fs, args, "document id")
	if err != nil {
		return err
	}
	s, err := e.store(ctx)
	if err != nil {
		return err
	}
	tomb, err := s.Delete(ctx, id, *rev)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %s\n", id, tomb)
	return nil
}

func (e *env) search(ctx context.Context, args []string) error {
	fs := e.flags("search")
	var filters, fields stringList
	fs.Var(&filters, "fq", "filter query, repeatable")
	fs.Var(&fields, "fl", "field to return, repeatable")
	sort := fs.String("sort", "", "sort clause")
	start := fs.Int("start", 0, "offset of the first result")
	rows := fs.Int("rows", 10, "number of results")
	grep := fs.String("grep", "", "only report documents whose -field matches this pattern")
	field := fs.String("field", "title", "field searched by -grep")
	regex := fs.Bool("E", false, "treat -grep as a regular expression")
	q, err := oneArg(fs, args, "query")
	if err != nil {
		return err
	}

	idx, err := e.index()
	if err != nil {
		return err
	}
	res, err := idx.Search(ctx, search.Query{Q: q, Filters: filters, Fields: fields, Sort: *sort, Start: *start, Rows: *rows})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "found %d (showing %d from %d, %dms)\n", res.NumFound, len(res.Docs), res.Start, res.QTime)

	if *grep == "" {
		for _, d := range res.Docs {
			fmt.Fprintf(e.stdout, "%s\t%s\n", d.ID(), d.String(*field))
		}
		return nil
	}
	m, err := search.NewMatcher(search.MatchOptions{Pattern: *grep, UseRegex: *regex, CaseInsensitive: true})
	if err != nil {
		return err
	}
	for _, hit := range m.Documents(res.Docs, *field) {
		fmt.Fprintf(e.stdout, "%s\t%s: %s\n", hit.DocID, hit.Field, hit.Context)
	}
	return nil
}

func (e *env) fetch(ctx context.Context, args []string) error {
	fs := e.flags("fetch")
	method := fs.String("X", "GET", "request method")
	dataFile := fs.String("data", "", "file sent as the request body, - for stdin")
	var hdrs stringList
	fs.Var(&hdrs, "H", "request header \"Name: value\", repeatable")
	expect := fs.Bool("expect", false, "send Expect: 100-continue with the body")
	include := fs.Bool("i", false, "print the status line and headers")
	timing := fs.Bool("timing", false, "print timing to stderr")
	progress := fs.Bool("progress", false, "print progress to stderr")
	grep := fs.String("grep", "", "print matches of this pattern instead of the body")
	regex := fs.Bool("E", false, "treat -grep as a regular expression")
	target, err := oneArg(fs, args, "URL")
	if err != nil {
		return err
	}

	var content io.Reader
	if *dataFile != "" {
		if *dataFile == "-" {
			content = e.stdin
		} else {
			f, err := os.Open(*dataFile)
			if err != nil {
				return err
			}
			defer f.Close()
			content = f
		}
	}
	req, err := message.NewRequest(strings.ToUpper(*method), target, content)
	if err != nil {
		return err
	}
	if f, ok := content.(*os.File); ok && f != os.Stdin {
		if st, err := f.Stat(); err == nil && st.Mode().IsRegular() {
			req.ContentLength = st.Size()
		}
	}
	for _, h := range hdrs {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("fetch: header %q is not Name: value", h)
		}
		req.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if *expect && content != nil {
		req.Headers.Set("Expect", "100-continue")
	}

	var observe func(rawhttp.Progress)
	if *progress {
		observe = func(p rawhttp.Progress) {
			fmt.Fprintf(e.stderr, "\r%5.1f%%  sent %d  received %d", p.Percent, p.Sent, p.Received)
		}
	}
	resp, err := e.client.SendWithProgress(ctx, req, observe)
	if *progress {
		fmt.Fprintln(e.stderr)
	}
	if err != nil {
		return err
	}
	body, err := resp.ReadAll()
	if err != nil {
		return err
	}
	if *timing {
		fmt.Fprintln(e.stderr, resp.Timing.String())
	}

	if *grep != "" {
		m, err := search.NewMatcher(search.MatchOptions{Pattern: *grep, UseRegex: *regex, SearchHeaderNames: true})
		if err != nil {
			return err
		}
		for _, hit := range m.Headers(resp.Headers) {
			fmt.Fprintf(e.stdout, "header %s: %s\n", hit.HeaderName, hit.MatchedText)
		}
		for _, hit := range m.Body(body) {
			fmt.Fprintf(e.stdout, "body:%d: %s\n", hit.LineNumber, hit.Context)
		}
		return nil
	}

	if *include {
		fmt.Fprintf(e.stdout, "%s\r\n", resp.Line.String())
		for _, h := range resp.Headers.All() {
			fmt.Fprintf(e.stdout, "%s: %s\r\n", h.Name, h.Value)
		}
		fmt.Fprint(e.stdout, "\r\n")
	}
	_, err = e.stdout.Write(body)
	return err
}
