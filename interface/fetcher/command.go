package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/service/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestsFile is the name of the file of the requests in the working directory
const RequestsFile = "requests.json"

// Command runs an external program to fetch the cube:
// <Executable> <Args...> --requests <file> --output <path> --nworkers <n> --max-deep-level <m>
type Command struct {
	Executable string
	Args       []string
	WorkingDir string
	// KeepWorkingDir does not remove the requests file after the run
	KeepWorkingDir bool
}

// GetCube implements CubeFetcher
func (c Command) GetCube(ctx context.Context, set common.RequestSet, opts Options) error {
	workdir := filepath.Join(c.WorkingDir, uuid.New().String())
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return fmt.Errorf("GetCube.MkdirAll: %w", err)
	}
	if !c.KeepWorkingDir {
		defer os.RemoveAll(workdir)
	}

	requestsFile := filepath.Join(workdir, RequestsFile)
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("GetCube.Marshal: %w", err)
	}
	if err := os.WriteFile(requestsFile, data, 0644); err != nil {
		return fmt.Errorf("GetCube.WriteFile: %w", err)
	}

	args := append([]string{}, c.Args...)
	args = append(args,
		"--requests", requestsFile,
		"--output", opts.OutputPath,
		"--nworkers", strconv.Itoa(opts.Workers),
		"--max-deep-level", strconv.Itoa(opts.MaxDeepLevel),
	)
	cmd := exec.Command(c.Executable, args...)
	log.Logger(ctx).Info("fetching cube", zap.String("cmd", cmd.String()), zap.Int("requests", set.Len()))
	if err := log.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("GetCube.Exec[%s]: %w", c.Executable, err)
	}
	return nil
}
