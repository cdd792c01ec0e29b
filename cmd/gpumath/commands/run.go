package commands

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/buffers"
	"github.com/gogpu/gpumath/device"
	"github.com/gogpu/gpumath/internal/kernels"
	"github.com/gogpu/gpumath/internal/parallel"
	"github.com/gogpu/gpumath/iteration"
	"github.com/gogpu/gpumath/problem"
	"github.com/gogpu/gpumath/shader"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score a random population and print the best candidate",
	RunE:  runRun,
}

func init() {
	d := DefaultConfig()
	f := runCmd.Flags()
	f.Int("population", d.Population, "number of candidates")
	f.Int("vector-length", d.VectorLength, "elements per candidate")
	f.String("direction", d.Direction, "minimize or maximize")
	f.Float64("cpu-share", d.CPUShare, "share of the population scored on the host, 0 to 1")
	f.Uint64("seed", d.Seed, "random seed for the population and goal")
	f.Int("workers", d.Workers, "host solver goroutines, 0 for GOMAXPROCS")

	_ = v.BindPFlag("population", f.Lookup("population"))
	_ = v.BindPFlag("vector_length", f.Lookup("vector-length"))
	_ = v.BindPFlag("direction", f.Lookup("direction"))
	_ = v.BindPFlag("cpu_share", f.Lookup("cpu-share"))
	_ = v.BindPFlag("seed", f.Lookup("seed"))
	_ = v.BindPFlag("workers", f.Lookup("workers"))

	rootCmd.AddCommand(runCmd)
}

// generate returns n candidates of vl elements and a goal vector, all
// drawn uniformly from [-1, 1).
func generate(seed uint64, n, vl int) (solutions, goal []float32) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	draw := func(k int) []float32 {
		out := make([]float32, k)
		for i := range out {
			out[i] = rng.Float32()*2 - 1
		}
		return out
	}
	return draw(n * vl), draw(vl)
}

// hostChunk is the number of candidates one host task scores.
const hostChunk = 256

// buildTree splits the population between a distance kernel and the host
// solver according to share. Either slice is left out when its share is
// zero.
func buildTree(sh *shader.Shader, goalBuf *buffers.Storage, goal []float32, share float64, r problem.Runner) (*iteration.Sliced[problem.Params], func()) {
	tree := iteration.NewSliced[problem.Params]()
	var cleanup []func()
	if share < 1 {
		gpu := problem.NewShaderProblem(sh, shader.ReadOnly(goalBuf))
		tree.Add(iteration.Proportional(1-share), gpu)
		cleanup = append(cleanup, gpu.Destroy)
	}
	if share > 0 {
		cpu := problem.NewCPUProblem(problem.Chunked(problem.SquaredDistance, r, hostChunk), goal)
		tree.Add(iteration.Proportional(share), cpu)
		cleanup = append(cleanup, cpu.Destroy)
	}
	return tree, func() {
		for _, fn := range cleanup {
			fn()
		}
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	dir, _ := cfg.OptimizationDirection()

	ctx, err := device.New(cmd.Context(), cfg.DeviceOptions()...)
	if err != nil {
		return fmt.Errorf("acquiring device: %w", err)
	}
	defer ctx.Destroy()

	solutions, goal := generate(cfg.Seed, cfg.Population, cfg.VectorLength)
	solBuf, err := buffers.InitStorage(ctx, solutions)
	if err != nil {
		return err
	}
	defer solBuf.Destroy()
	resBuf, err := buffers.NewStorageLabeled[float32](ctx, "results", cfg.Population)
	if err != nil {
		return err
	}
	defer resBuf.Destroy()
	goalBuf, err := buffers.InitStorage(ctx, goal)
	if err != nil {
		return err
	}
	defer goalBuf.Destroy()

	sh, err := shader.New(ctx, "distance", kernels.Distance)
	if err != nil {
		return err
	}
	defer sh.Destroy()

	pool := parallel.New(cfg.Workers)
	defer pool.Close()
	tree, release := buildTree(sh, goalBuf, goal, cfg.CPUShare, pool)
	defer release()
	counts, err := tree.Distribute(cfg.Population)
	if err != nil {
		return err
	}

	params := problem.Params{
		Context:      ctx,
		Solutions:    solBuf,
		Results:      resBuf,
		Count:        cfg.Population,
		VectorLength: cfg.VectorLength,
	}
	start := time.Now()
	if err := tree.EvaluateWithParams(params); err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}
	elapsed := time.Since(start)

	reader, err := buffers.NewReadback[float32](ctx, cfg.Population)
	if err != nil {
		return err
	}
	defer reader.Destroy()
	fitness, err := buffers.Read[float32](reader, resBuf, 0, cfg.Population)
	if err != nil {
		return fmt.Errorf("reading results: %w", err)
	}
	gpumath.Logger().Info("gpumath: evaluated", "population", cfg.Population, "slices", counts, "elapsed", elapsed)

	best := dir.Best(fitness)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "adapter:    %s\n", ctx.AdapterName())
	fmt.Fprintf(out, "population: %d x %d (slices %v)\n", cfg.Population, cfg.VectorLength, counts)
	fmt.Fprintf(out, "direction:  %s\n", dir)
	fmt.Fprintf(out, "best:       #%d fitness %.6f\n", best, fitness[best])
	fmt.Fprintf(out, "candidate:  %v\n", solutions[best*cfg.VectorLength:(best+1)*cfg.VectorLength])
	fmt.Fprintf(out, "goal:       %v\n", goal)
	fmt.Fprintf(out, "elapsed:    %s\n", elapsed)
	return nil
}
