package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed     int64
	errorsStream   int64
	warnsFeed      int64
	warnsStream    int64
	feedReads      int64
	bookUpdates    int64
	aggregations   int64
	streamPushes   int64
	reconnects     int64
	sessionsOpened int64
	sessionsClosed int64
	channels       sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsFeed, 1)
	} else if strings.Contains(component, "stream") {
		atomic.AddInt64(&warnsStream, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsFeed, 1)
	} else if strings.Contains(component, "stream") {
		atomic.AddInt64(&errorsStream, 1)
	}
}

// IncrementFeedRead records one data frame received from the upstream feed.
func IncrementFeedRead(size int) {
	atomic.AddInt64(&feedReads, 1)
	recordChannel("feed_ws", size)
}

// IncrementBookUpdate records one full-snapshot replace in the orderbook cache.
func IncrementBookUpdate(levels int) {
	atomic.AddInt64(&bookUpdates, 1)
	recordChannel("book_cache", levels)
}

// IncrementAggregation records one synthetic orderbook computation.
func IncrementAggregation(levels int) {
	atomic.AddInt64(&aggregations, 1)
	recordChannel("aggregate", levels)
}

// IncrementStreamPush records one orderbook push to a downstream client.
func IncrementStreamPush(size int) {
	atomic.AddInt64(&streamPushes, 1)
	recordChannel("stream_ws", size)
}

// IncrementReconnect records one upstream shard reconnect.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

// IncrementSessionOpen records one accepted stream session.
func IncrementSessionOpen() {
	atomic.AddInt64(&sessionsOpened, 1)
}

// IncrementSessionClose records one closed stream session.
func IncrementSessionClose() {
	atomic.AddInt64(&sessionsClosed, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_feed":     atomic.LoadInt64(&errorsFeed),
		"errors_stream":   atomic.LoadInt64(&errorsStream),
		"warns_feed":      atomic.LoadInt64(&warnsFeed),
		"warns_stream":    atomic.LoadInt64(&warnsStream),
		"feed_reads":      atomic.LoadInt64(&feedReads),
		"book_updates":    atomic.LoadInt64(&bookUpdates),
		"aggregations":    atomic.LoadInt64(&aggregations),
		"stream_pushes":   atomic.LoadInt64(&streamPushes),
		"reconnects":      atomic.LoadInt64(&reconnects),
		"sessions_opened": atomic.LoadInt64(&sessionsOpened),
		"sessions_closed": atomic.LoadInt64(&sessionsClosed),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Flow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-ErrorsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_feed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_stream"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-WarnsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_feed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-WarnsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_stream"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-FeedReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["feed_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-BookUpdates"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["book_updates"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-Aggregations"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["aggregations"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-StreamPushes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["stream_pushes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-Reconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["reconnects"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-SessionsOpened"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["sessions_opened"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-SessionsClosed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["sessions_closed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Flow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Flow-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Flow-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
