package statistic

import (
	"strconv"
	"sync"
	"time"

	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/info/logger"
)

/*
	Statistic Package

	Request counters of the edge proxy. Kept in memory as a daily
	summary, persisted to the "stats" table and exported to Prometheus
*/

const statTable = "stats"

// Faststat, a summary of the day so an overview never loops over raw requests
type DailySummary struct {
	TotalRequest int64            //Total request of the day
	ErrorRequest int64            //Invalid request of the day, 4xx / 5xx or proxy error
	ValidRequest int64            //Valid request of the day
	ForwardTypes map[string]int64 //listener:class => counter
	StatusCodes  map[string]int64 //status code => counter
	OriginErrors map[string]int64 //origin error kind => counter
}

type RequestInfo struct {
	IpAddr     string
	Listener   string //http or https
	Class      string //Route class, e.g. static
	StatusCode int
	Written    int64
	Duration   time.Duration
}

type CollectorOption struct {
	Database     *database.Database
	SaveInterval time.Duration //Flush interval of the summary to the database
	Logger       *logger.Logger
}

type Collector struct {
	Option  *CollectorOption
	Metrics *Metrics

	mu       sync.Mutex
	summary  *DailySummary
	day      string //Summary key of the day the in-memory summary belongs to
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewStatisticCollector(option CollectorOption) (*Collector, error) {
	if err := option.Database.NewTable(statTable); err != nil {
		return nil, err
	}
	if option.SaveInterval <= 0 {
		option.SaveInterval = 10 * time.Minute
	}

	thisCollector := Collector{
		Option:   &option,
		Metrics:  NewMetrics(),
		summary:  newDailySummary(),
		stopChan: make(chan struct{}),
	}

	//Load the stat if exists for today
	//This will exists if the program was restarted
	now := time.Now()
	thisCollector.day = summaryKey(now)
	year, month, day := now.Date()
	if summary := thisCollector.LoadSummaryOfDay(year, month, day); summary != nil {
		thisCollector.summary = summary
	}

	thisCollector.wg.Add(1)
	go thisCollector.scheduleSaveAndReset()
	return &thisCollector, nil
}

func summaryKey(t time.Time) string {
	return t.Format("2006_01_02")
}

// Write the current in-memory summary to database file
func (c *Collector) SaveSummaryOfDay() error {
	c.rollover(time.Now())
	return c.saveSummary()
}

// Save the in-memory summary under the day it was collected
func (c *Collector) saveSummary() error {
	c.mu.Lock()
	saveData := c.summary.clone()
	key := c.day
	c.mu.Unlock()
	return c.Option.Database.Write(statTable, key, saveData)
}

// rollover start an empty summary once now is on another day than the
// in-memory one. The finished day is saved under its own key first
func (c *Collector) rollover(now time.Time) {
	key := summaryKey(now)
	c.mu.Lock()
	if key == c.day {
		c.mu.Unlock()
		return
	}
	finished, finishedKey := c.summary, c.day
	c.summary = newDailySummary()
	c.day = key
	c.mu.Unlock()

	//finished is no longer shared once swapped out
	if err := c.Option.Database.Write(statTable, finishedKey, finished); err != nil {
		c.logf("Unable to save statistic summary of "+finishedKey, err)
	}
}

// Load the summary of a day given, nil if not found
func (c *Collector) LoadSummaryOfDay(year int, month time.Month, day int) *DailySummary {
	key := summaryKey(time.Date(year, month, day, 0, 0, 0, 0, time.Local))
	if !c.Option.Database.KeyExists(statTable, key) {
		return nil
	}
	summary := newDailySummary()
	if err := c.Option.Database.Read(statTable, key, summary); err != nil {
		return nil
	}
	summary.ensureMaps()
	return summary
}

// TodaySummary return a copy of the current day
func (c *Collector) TodaySummary() DailySummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.summary.clone()
}

// RecordRequest count a finished request in the summary and the metrics
func (c *Collector) RecordRequest(ri RequestInfo) {
	c.mu.Lock()
	c.summary.TotalRequest++
	if ri.StatusCode >= 400 {
		c.summary.ErrorRequest++
	} else {
		c.summary.ValidRequest++
	}
	c.summary.ForwardTypes[ri.Listener+":"+ri.Class]++
	c.summary.StatusCodes[strconv.Itoa(ri.StatusCode)]++
	c.mu.Unlock()

	c.Metrics.observeRequest(ri)
}

// RecordOriginError count a failed request toward the origin by kind
func (c *Collector) RecordOriginError(kind string) {
	c.mu.Lock()
	c.summary.OriginErrors[kind]++
	c.mu.Unlock()
	c.Metrics.OriginErrors.WithLabelValues(kind).Inc()
}

// Periodic save and the nightly reset
func (c *Collector) scheduleSaveAndReset() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.Option.SaveInterval)
	defer ticker.Stop()

	for {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		select {
		case <-ticker.C:
			if err := c.SaveSummaryOfDay(); err != nil {
				c.logf("Unable to save statistic summary", err)
			}
		case <-time.After(midnight.Sub(now)):
			//The timer may fire a little before the wall clock agrees
			rolloverAt := time.Now()
			if rolloverAt.Before(midnight) {
				rolloverAt = midnight
			}
			c.rollover(rolloverAt)
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) logf(message string, err error) {
	if c.Option.Logger != nil {
		c.Option.Logger.PrintAndLog("statistic", message, err)
	}
}

// Close stop the scheduler and write the buffered data into the database
func (c *Collector) Close() {
	close(c.stopChan)
	c.wg.Wait()
	if err := c.SaveSummaryOfDay(); err != nil {
		c.logf("Unable to save statistic summary", err)
	}
}

func newDailySummary() *DailySummary {
	s := &DailySummary{}
	s.ensureMaps()
	return s
}

func (s *DailySummary) ensureMaps() {
	if s.ForwardTypes == nil {
		s.ForwardTypes = map[string]int64{}
	}
	if s.StatusCodes == nil {
		s.StatusCodes = map[string]int64{}
	}
	if s.OriginErrors == nil {
		s.OriginErrors = map[string]int64{}
	}
}

func (s *DailySummary) clone() *DailySummary {
	copied := &DailySummary{
		TotalRequest: s.TotalRequest,
		ErrorRequest: s.ErrorRequest,
		ValidRequest: s.ValidRequest,
		ForwardTypes: make(map[string]int64, len(s.ForwardTypes)),
		StatusCodes:  make(map[string]int64, len(s.StatusCodes)),
		OriginErrors: make(map[string]int64, len(s.OriginErrors)),
	}
	for k, v := range s.ForwardTypes {
		copied.ForwardTypes[k] = v
	}
	for k, v := range s.StatusCodes {
		copied.StatusCodes[k] = v
	}
	for k, v := range s.OriginErrors {
		copied.OriginErrors[k] = v
	}
	return copied
}
