// Command vpagerctl is an operator CLI for a vpager-backed page store: it
// creates stores, reports allocator state, drives allocation/recycling by
// hand for testing, and serves the allocator's Prometheus metrics.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"vpager/internal/logging"
	"vpager/pkg/manager"
	"vpager/pkg/metrics"
	"vpager/pkg/pagestore"
)

var log = logging.With("vpagerctl")

var (
	app = kingpin.New("vpagerctl", "Operator tool for the vpager page allocator.")

	initCmd      = app.Command("init", "Create a new page store and bootstrap its allocator state.")
	initFile     = initCmd.Arg("file", "Path to the page store file.").Required().String()
	initPages    = initCmd.Flag("pages", "Total number of fixed-size pages to allocate.").Required().Uint64()

	statsCmd  = app.Command("stats", "Print the current allocator state.")
	statsFile = statsCmd.Arg("file", "Path to the page store file.").Required().String()

	allocCmd   = app.Command("alloc", "Allocate pages and print their indices.")
	allocFile  = allocCmd.Arg("file", "Path to the page store file.").Required().String()
	allocNum   = allocCmd.Flag("num", "Number of pages to allocate.").Default("1").Uint64()
	allocReuse = allocCmd.Flag("reuse", "Draw from the recycled pool before allocating fresh pages.").Default("true").Bool()

	recycleCmd   = app.Command("recycle", "Mark pages as recyclable and consolidate.")
	recycleFile  = recycleCmd.Arg("file", "Path to the page store file.").Required().String()
	recyclePages = recycleCmd.Arg("pages", "Comma-separated page indices to recycle.").Required().String()

	consolidateCmd  = app.Command("consolidate", "Commit pending allocator state to disk.")
	consolidateFile = consolidateCmd.Arg("file", "Path to the page store file.").Required().String()

	historyCmd    = app.Command("history", "List the recycled pages recorded at a past version.")
	historyFile   = historyCmd.Arg("file", "Path to the page store file.").Required().String()
	historyVer    = historyCmd.Arg("version", "Version number to inspect.").Required().Uint64()

	serveCmd     = app.Command("serve", "Serve the allocator's Prometheus metrics over HTTP.")
	serveFile    = serveCmd.Arg("file", "Path to the page store file.").Required().String()
	serveAddr    = serveCmd.Flag("addr", "Address to listen on.").Default(":9116").String()
)

func main() {
	kingpin.Version("0.1.0")
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case initCmd.FullCommand():
		exitOn(runInit())
	case statsCmd.FullCommand():
		exitOn(runStats())
	case allocCmd.FullCommand():
		exitOn(runAlloc())
	case recycleCmd.FullCommand():
		exitOn(runRecycle())
	case consolidateCmd.FullCommand():
		exitOn(runConsolidate())
	case historyCmd.FullCommand():
		exitOn(runHistory())
	case serveCmd.FullCommand():
		exitOn(runServe())
	}
}

func exitOn(err error) {
	if err != nil {
		log.WithError(err).Error("command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInit() error {
	store, err := pagestore.Open(*initFile, *initPages)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := manager.New(store, *initPages); err != nil {
		return err
	}
	fmt.Printf("initialized %s with %d pages\n", *initFile, *initPages)
	return nil
}

// openExisting sizes the store from the file already on disk, since
// pagestore.Open needs the page count before the root ConfigPage (which
// records total_allocated_pages) can be read.
func openExisting(path string) (*pagestore.PageStore, uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	numPages := uint64(info.Size()) / pagestore.PageSize
	store, err := pagestore.Open(path, numPages)
	if err != nil {
		return nil, 0, err
	}
	return store, numPages, nil
}

func runStats() error {
	store, numPages, err := openExisting(*statsFile)
	if err != nil {
		return err
	}
	defer store.Close()

	pm, err := manager.New(store, numPages)
	if err != nil {
		return err
	}
	snap := pm.Snapshot()
	fmt.Printf("total_allocated_pages: %d\n", snap.TotalAllocatedPages)
	fmt.Printf("last_used_page:        %d\n", snap.LastUsedPage)
	fmt.Printf("version_number:        %d\n", snap.VersionNumber)
	fmt.Printf("recycled_page_count:   %d\n", snap.RecycledPageCount)
	return nil
}

func runAlloc() error {
	store, numPages, err := openExisting(*allocFile)
	if err != nil {
		return err
	}
	defer store.Close()

	pm, err := manager.New(store, numPages)
	if err != nil {
		return err
	}
	got, err := pm.GetFreePages(*allocNum, *allocReuse)
	if err != nil {
		return err
	}
	fmt.Println(joinUint64(got))
	return nil
}

func runRecycle() error {
	store, numPages, err := openExisting(*recycleFile)
	if err != nil {
		return err
	}
	defer store.Close()

	pm, err := manager.New(store, numPages)
	if err != nil {
		return err
	}
	indices, err := parseUint64List(*recyclePages)
	if err != nil {
		return err
	}
	pm.RecyclePages(indices)
	return pm.ConsolidateState()
}

func runConsolidate() error {
	store, numPages, err := openExisting(*consolidateFile)
	if err != nil {
		return err
	}
	defer store.Close()

	pm, err := manager.New(store, numPages)
	if err != nil {
		return err
	}
	return pm.ConsolidateState()
}

func runHistory() error {
	store, numPages, err := openExisting(*historyFile)
	if err != nil {
		return err
	}
	defer store.Close()

	pm, err := manager.New(store, numPages)
	if err != nil {
		return err
	}
	entries, err := pm.GetFreeListPageAt(*historyVer)
	if err != nil {
		return err
	}
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.ToU64()
	}
	fmt.Println(joinUint64(out))
	return nil
}

func runServe() error {
	store, numPages, err := openExisting(*serveFile)
	if err != nil {
		return err
	}
	defer store.Close()

	pm, err := manager.New(store, numPages)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(pm))

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("addr", *serveAddr).Info("serving metrics")
	return http.ListenAndServe(*serveAddr, nil)
}

func parseUint64List(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func joinUint64(vs []uint64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ",")
}
