package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/born-ml/devmem/internal/memory"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// writeStats prints allocator stats as a table or as JSON.
func writeStats(out io.Writer, stats []memory.AllocatorStats, asJSON bool) error {
	if asJSON {
		return writeStatsJSON(out, stats)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSTRATEGY\tUSED\tHITS\tMISSES\tDEVICE ALLOCS\tDEVICE FREES\tPOOLED\tPOOLED BYTES")
	for _, st := range stats {
		if st.Pool == nil {
			fmt.Fprintf(tw, "%s\t%s\t%d\t-\t-\t-\t-\t-\t-\n", st.Device, st.Type, st.UsedBytes)
			continue
		}
		p := st.Pool
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n", st.Device, st.Type, st.UsedBytes,
			p.Hits, p.Misses, p.DeviceAllocs, p.DeviceFrees, p.Pooled, p.PooledBytes)
	}
	return tw.Flush()
}

func writeStatsJSON(out io.Writer, stats []memory.AllocatorStats) error {
	list, err := statsList(stats)
	if err != nil {
		return err
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// statsList converts allocator stats into a protobuf list value.
func statsList(stats []memory.AllocatorStats) (*structpb.ListValue, error) {
	items := make([]any, 0, len(stats))
	for _, st := range stats {
		item := map[string]any{
			"device":     st.Device.String(),
			"strategy":   st.Type.String(),
			"used_bytes": st.UsedBytes,
		}
		if p := st.Pool; p != nil {
			item["pool"] = map[string]any{
				"hits":          p.Hits,
				"misses":        p.Misses,
				"device_allocs": p.DeviceAllocs,
				"device_frees":  p.DeviceFrees,
				"pooled":        p.Pooled,
				"pooled_bytes":  p.PooledBytes,
			}
		}
		items = append(items, item)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, fmt.Errorf("build stats: %w", err)
	}
	return list, nil
}
