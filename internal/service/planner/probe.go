package planner

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lokality-ai/lokality/pkg/log"
)

// ResourceProbe reports total system RAM and VRAM in megabytes. Zero means
// not detectable.
type ResourceProbe interface {
	Resources(ctx context.Context) (ramMB, vramMB int64)
}

// SystemProbe inspects the live host: /proc/meminfo for RAM, nvidia-smi and
// the amdgpu sysfs for VRAM, with a UMA fallback for integrated GPUs.
type SystemProbe struct{}

func (SystemProbe) Resources(ctx context.Context) (int64, int64) {
	ramMB := totalRAM()
	vramMB := nvidiaVRAM(ctx) + amdVRAM()
	vramMB = umaFallback(ctx, vramMB, ramMB)
	return ramMB, vramMB
}

func totalRAM() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return 0
			}
			return kb / 1024
		}
	}
	return 0
}

func nvidiaVRAM(ctx context.Context) int64 {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0
	}

	var total int64
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		mb, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
		if err != nil {
			continue
		}
		total += mb
	}
	return total
}

func amdVRAM() int64 {
	cards, err := filepath.Glob("/sys/class/drm/card*/device/mem_info_vram_total")
	if err != nil {
		return 0
	}

	var total int64
	for _, card := range cards {
		raw, err := os.ReadFile(card)
		if err != nil {
			continue
		}
		bytes, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			continue
		}
		total += bytes / (1024 * 1024)
	}
	return total
}

// umaFallback treats system RAM as the VRAM pool when the only GPU is an
// integrated Intel or AMD part. Such cards report little or no dedicated
// VRAM yet share main memory with the CPU.
func umaFallback(ctx context.Context, vramMB, ramMB int64) int64 {
	if vramMB >= 1024 {
		return vramMB
	}

	vendors, err := filepath.Glob("/sys/class/drm/card*/device/vendor")
	if err != nil {
		return vramMB
	}
	for _, path := range vendors {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		vendor := strings.TrimSpace(string(raw))
		if vendor == "0x8086" || vendor == "0x1002" {
			log.FromCtx(ctx).Info().Str("vendor", vendor).Msg("integrated GPU detected, using shared system RAM")
			if ramMB > vramMB {
				return ramMB
			}
			return vramMB
		}
	}
	return vramMB
}
