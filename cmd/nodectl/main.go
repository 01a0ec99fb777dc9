// Command nodectl inspects and edits the node repository configured through
// the NODEMAPPER_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"nodemapper/internal/core"
	"nodemapper/internal/logging"
	"nodemapper/pkg/domain"
)

const NodeCtlVersion = "0.1.0"

const usage = `Node repository control.

The session is selected with NODEMAPPER_SESSION_DRIVER (memory, sqlite,
postgres or blob) and defaults to sqlite in ./nodemapper.db.

Usage:
    nodectl get [--verbose] <path>
    nodectl ls [--verbose] [<path>]
    nodectl set [--verbose] [--type=<type>] <path> <property> <value>
    nodectl rm [--verbose] <path>
    nodectl query [--verbose] <root> [<expr>]
    nodectl -h | --help
    nodectl --version

Options:
    -h --help        Show this screen.
    --version        Show version.
    --verbose        Log unit of work activity to stderr.
    --type=<type>    Node type written with the property.`

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer glog.Flush()

	session, err := core.OpenSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nodectl: %v\n", err)
		os.Exit(1)
	}
	if closer, ok := session.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	if err := run(ctx, os.Args[1:], session, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "nodectl: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

// run executes one command. extra options are applied after the defaults.
func run(ctx context.Context, argv []string, session domain.RepositorySession, out io.Writer, extra ...core.Option) error {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	opts, err := parser.ParseArgs(usage, argv, NodeCtlVersion)
	if err != nil {
		return err
	}
	if len(opts) == 0 {
		// help or version was printed
		return nil
	}

	if verbose, _ := opts.Bool("--verbose"); verbose {
		_ = flag.Set("logtostderr", "true")
		_ = flag.Set("v", "2")
	}
	metadata := newPropertyMetadata()
	options := append([]core.Option{
		core.WithLogger(logging.NewGlog("[nodectl]")),
		core.WithMetadataProvider(metadata),
	}, extra...)
	dm := core.NewDocumentManager(session, options...)

	if get_, _ := opts.Bool("get"); get_ {
		return get(ctx, opts, dm, out)
	} else if ls_, _ := opts.Bool("ls"); ls_ {
		return ls(ctx, opts, dm, out)
	} else if set_, _ := opts.Bool("set"); set_ {
		return set(ctx, opts, dm, metadata, out)
	} else if rm_, _ := opts.Bool("rm"); rm_ {
		return rm(ctx, opts, dm, out)
	} else if query_, _ := opts.Bool("query"); query_ {
		return query(ctx, opts, dm, out)
	}
	return nil
}

func get(ctx context.Context, opts docopt.Opts, dm *core.DocumentManager, out io.Writer) error {
	path, _ := opts.String("<path>")
	node, found, err := dm.Session().ReadNode(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	return writeJSON(out, node)
}

func ls(ctx context.Context, opts docopt.Opts, dm *core.DocumentManager, out io.Writer) error {
	root, err := opts.String("<path>")
	if err != nil || root == "" {
		root = domain.RootPath
	}
	lister, ok := dm.Session().(domain.NodeLister)
	if !ok {
		return core.ErrListingUnsupported
	}
	paths, err := lister.ListDescendants(ctx, root)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

func set(ctx context.Context, opts docopt.Opts, dm *core.DocumentManager, metadata *propertyMetadata, out io.Writer) error {
	path, _ := opts.String("<path>")
	property, _ := opts.String("<property>")
	value, _ := opts.String("<value>")
	nodeType, _ := opts.String("--type")
	metadata.bind(property, nodeType)

	raw := json.RawMessage(value)
	if !json.Valid(raw) {
		// not JSON, store the argument as a string
		raw, _ = json.Marshal(value)
	}
	found, ok, err := dm.Find(ctx, propertyDocType, path)
	if err != nil {
		return err
	}
	doc := &propertyDoc{}
	if ok {
		doc = found.(*propertyDoc)
	} else if err := dm.Persist(ctx, doc, path); err != nil {
		return err
	}
	doc.Value = raw
	if err := dm.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, doc.Path)
	return nil
}

func rm(ctx context.Context, opts docopt.Opts, dm *core.DocumentManager, out io.Writer) error {
	path, _ := opts.String("<path>")
	doc, found, err := dm.Find(ctx, propertyDocType, path)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	if err := dm.Remove(ctx, doc); err != nil {
		return err
	}
	if err := dm.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func query(ctx context.Context, opts docopt.Opts, dm *core.DocumentManager, out io.Writer) error {
	root, _ := opts.String("<root>")
	expression, err := opts.String("<expr>")
	if err != nil {
		expression = ""
	}
	q, err := dm.CreateNativeQuery(root, expression)
	if err != nil {
		return err
	}
	nodes, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		if err := writeJSON(out, node); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	return enc.Encode(v)
}
