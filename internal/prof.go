package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/oneconcern/treemon/internal/rand"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

func writeProfIfNExist(path string, name string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	fprof, err := os.Create(path)
	if err != nil {
		return err
	}
	err = pprof.Lookup(name).WriteTo(fprof, 0)
	return errs.Combine(err, fprof.Close())
}

// MemProfParams tune a memory profile
type MemProfParams struct {
	DestDir    string
	NamePrefix string
	Logger     *zap.Logger
}

func memProfDefaults(params MemProfParams) MemProfParams {
	if params.DestDir == "" {
		params.DestDir = os.TempDir()
	}
	if params.NamePrefix == "" {
		params.NamePrefix = "mem_" + rand.LetterString(3)
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return params
}

// MemProf writes heap and allocation profiles to a directory, without overwriting existing ones
func MemProf(params MemProfParams) error {
	params = memProfDefaults(params)
	mstats := new(runtime.MemStats)
	runtime.ReadMemStats(mstats)
	params.Logger.Info("memory profile",
		zap.Uint64("MiB for heap (un-GC)", mstats.Alloc/1024/1024),
		zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/1024/1024),
		zap.Int("num go routines", runtime.NumGoroutine()),
	)
	basePath := filepath.Join(params.DestDir, strings.Join([]string{params.NamePrefix, "treemon"}, "-"))
	if err := writeProfIfNExist(basePath+".mem.prof", "heap"); err != nil {
		return err
	}
	return writeProfIfNExist(basePath+".alloc.prof", "allocs")
}

// CPUProf starts a CPU profile written to path. The returned function stops it.
func CPUProf(path string) (func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		return nil, errs.Combine(err, f.Close())
	}
	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}
