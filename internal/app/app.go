// Package app owns the terminal lifecycle and the single-threaded event
// loop. All editor and LSP state is touched only from this loop; async
// results arrive on channels drained on every wakeup.
package app

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/document"
	"github.com/rkovacs/medit/internal/editor"
	"github.com/rkovacs/medit/internal/gitinfo"
	"github.com/rkovacs/medit/internal/logger"
	"github.com/rkovacs/medit/internal/lsp"
)

// Options controls a single editor run.
type Options struct {
	// Path is the file to open, empty for a scratch buffer.
	Path string
	// Stdin/Stdout are swappable for tests; nil means the real ones.
	Stdin  io.Reader
	Stdout io.Writer
}

// App is the top-level runtime for medit.
type App struct {
	opts Options
}

func New(opts Options) *App {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &App{opts: opts}
}

// PipeMode reports whether stdin is not a terminal, meaning the buffer
// is seeded from stdin and written to stdout on exit.
func PipeMode() bool {
	return !term.IsTerminal(int(os.Stdin.Fd()))
}

// Run loads config, opens the document, starts the LSP registry, and
// drives the event loop until quit.
func (a *App) Run() error {
	runtime.LockOSThread()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pipeMode := PipeMode()
	doc, err := a.openDocument(pipeMode)
	if err != nil {
		return err
	}

	ed := editor.New(&cfg, doc)
	if pipeMode {
		ed.SuppressQuitDialog()
	}

	reg := lsp.NewRegistry(&cfg, rootURI(doc.Path()), ed, ed.EnqueueDiagnostics)
	ed.AttachRegistry(reg)
	defer ed.Shutdown()

	if err := a.runLoop(ed, doc); err != nil {
		if pipeMode {
			// No usable terminal at all: pass the content through.
			logger.Info("no terminal available, passing content through", "err", err)
			_, werr := io.WriteString(a.opts.Stdout, doc.Content())
			return werr
		}
		return err
	}

	if pipeMode {
		_, err := io.WriteString(a.opts.Stdout, doc.Content())
		return err
	}
	return nil
}

// openDocument seeds the buffer from stdin in pipe mode, from the named
// file otherwise.
func (a *App) openDocument(pipeMode bool) (*document.Document, error) {
	if pipeMode {
		data, err := io.ReadAll(a.opts.Stdin)
		if err != nil {
			return nil, err
		}
		return document.New(a.opts.Path, data), nil
	}
	if a.opts.Path == "" {
		return document.New("", nil), nil
	}
	abs, err := filepath.Abs(a.opts.Path)
	if err != nil {
		abs = a.opts.Path
	}
	return document.Open(abs)
}

// rootURI picks the workspace root sent at initialize time: the git
// root when the file sits in a repository, its directory otherwise.
func rootURI(path string) string {
	dir := ""
	if path != "" {
		dir = filepath.Dir(path)
	}
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		}
	}
	if root := gitinfo.Root(dir); root != "" {
		dir = root
	}
	return lsp.FileURI(dir)
}

func (a *App) runLoop(ed *editor.Editor, doc *document.Document) error {
	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = s.PostEvent(tcell.NewEventInterrupt(nil))
			}
		}
	}()

	gitPath := doc.Path()
	if gitPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			gitPath = cwd
		}
	}
	ed.SetGitBranch(gitinfo.Branch(gitPath))
	lastGitCheck := time.Now()

	ed.Render(s)
	for {
		ev := s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ed.HandleKey(ev) {
				return nil
			}
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventInterrupt:
			// Async LSP results are drained below.
		}
		ed.Tick()
		if time.Since(lastGitCheck) > 2*time.Second {
			lastGitCheck = time.Now()
			ed.SetGitBranch(gitinfo.Branch(gitPath))
		}
		ed.Render(s)
	}
}
