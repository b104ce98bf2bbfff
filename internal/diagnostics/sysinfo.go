package diagnostics

import (
	"context"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/birdnet-notifier/internal/conf"
)

const maxDiskMounts = 8

// collectSystemInfo snapshots the host. Every probe is best-effort, a
// bundle with partial system data beats no bundle.
func collectSystemInfo(ctx context.Context) *SystemInfo {
	info := &SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		CPUModel:     cpuid.CPU.BrandName,
		Container:    conf.RunningInContainer(),
	}

	// Interval 0 reads utilization since boot without blocking.
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		info.CPUPercent = percent[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotalMB = vm.Total / 1024 / 1024
		info.MemoryUsedPerc = vm.UsedPercent
	}

	if partitions, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, p := range partitions {
			if len(info.Disks) >= maxDiskMounts {
				break
			}
			usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
			if err != nil || usage.Total == 0 {
				continue
			}
			info.Disks = append(info.Disks, DiskInfo{
				Mountpoint: p.Mountpoint,
				TotalMB:    usage.Total / 1024 / 1024,
				UsedMB:     usage.Used / 1024 / 1024,
				UsedPerc:   usage.UsedPercent,
			})
		}
	}

	if runtime.GOOS == "linux" && runtime.GOARCH == "arm64" {
		info.BoardModel = conf.GetBoardModel()
	}

	return info
}
