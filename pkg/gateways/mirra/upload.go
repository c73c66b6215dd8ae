package mirra

import (
	"context"
	"fmt"
	"os"
	"strconv"

	bloomFilter "github.com/bits-and-blooms/bloom/v3"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/gateways/mirra/network"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DUPLICATION_FILTER            = "1"
	FILTER_CAPACITY               = "100000"
	DUPLICATION_PROBABILITY       = "0.01"
	RESET_FILTER_USAGE_PERCENTAGE = "0.75"
)

// Uploader publishes stored measurements that were not uploaded yet.
type Uploader struct {
	gateway                      entities.Address
	publisher                    network.Publisher
	measurements                 storage.MeasurementLog
	maxErrors                    int
	batchSize                    int
	duplicationFilterEnabled     bool
	filters                      map[entities.Address]*bloomFilter.BloomFilter
	maximumPercentageFilterUsage float32
	filterCapacity               uint
	duplicationProbability       float64
	log                          *logrus.Entry
}

func NewUploader(conf entities.UploadConfig, gatewayID uint16, publisher network.Publisher, measurements storage.MeasurementLog, log *logrus.Entry) (*Uploader, error) {
	maximumPercentageFilterUsage, err := strconv.ParseFloat(getValueFromEnvironmentVariable("RESET_FILTER_USAGE_PERCENTAGE", RESET_FILTER_USAGE_PERCENTAGE), 32)
	if err != nil {
		return nil, errors.Wrap(err, "RESET_FILTER_USAGE_PERCENTAGE")
	}
	filterCapacity, err := strconv.ParseUint(getValueFromEnvironmentVariable("FILTER_CAPACITY", FILTER_CAPACITY), 10, 0)
	if err != nil {
		return nil, errors.Wrap(err, "FILTER_CAPACITY")
	}
	duplicationProbability, err := strconv.ParseFloat(getValueFromEnvironmentVariable("DUPLICATION_PROBABILITY", DUPLICATION_PROBABILITY), 64)
	if err != nil {
		return nil, errors.Wrap(err, "DUPLICATION_PROBABILITY")
	}

	return &Uploader{
		gateway:                      entities.Address{Gateway: gatewayID},
		publisher:                    publisher,
		measurements:                 measurements,
		maxErrors:                    max(conf.MaxErrors, 1),
		batchSize:                    max(conf.BatchSize, 1),
		duplicationFilterEnabled:     getValueFromEnvironmentVariable("DUPLICATION_FILTER", DUPLICATION_FILTER) == "1",
		filters:                      map[entities.Address]*bloomFilter.BloomFilter{},
		maximumPercentageFilterUsage: float32(maximumPercentageFilterUsage),
		filterCapacity:               uint(filterCapacity),
		duplicationProbability:       duplicationProbability,
		log:                          log,
	}, nil
}

// UploadPeriod publishes pending records batch by batch and marks them
// uploaded. It gives up after maxErrors failed publishes and leaves the
// remaining records for the next period.
func (u *Uploader) UploadPeriod(ctx context.Context) (int, error) {
	published, failures := 0, 0
	for {
		records, err := u.measurements.Unuploaded(u.batchSize)
		if err != nil {
			return published, errors.Wrap(err, "read pending measurements")
		}
		if len(records) == 0 {
			return published, nil
		}

		done := make([]int64, 0, len(records))
		for _, record := range records {
			if ctx.Err() != nil {
				return published, u.markUploaded(done, ctx.Err())
			}
			if u.isMeasurementDuplicated(record) {
				u.log.Debugf("skipping duplicated measurement of %s at %d", record.Source, record.Timestamp)
				done = append(done, record.ID)
				continue
			}
			for {
				err := u.publisher.PublishMeasurement(u.gateway, record)
				if err == nil {
					break
				}
				failures++
				u.log.Warnf("publishing measurement of %s: %v", record.Source, err)
				if failures >= u.maxErrors {
					return published, u.markUploaded(done, errors.Wrapf(ErrUploadAborted, "%d publish errors", failures))
				}
			}
			u.updateDuplicationFilter(record)
			done = append(done, record.ID)
			published++
		}
		if err := u.markUploaded(done, nil); err != nil {
			return published, err
		}
	}
}

func (u *Uploader) markUploaded(ids []int64, cause error) error {
	if len(ids) > 0 {
		if err := u.measurements.MarkUploaded(ids...); err != nil {
			return errors.Wrap(err, "mark uploaded")
		}
	}
	return cause
}

func measurementKey(record entities.Record) []byte {
	return []byte(fmt.Sprintf("%d_%d", record.Timestamp, record.Flags.NValues))
}

func (u *Uploader) isMeasurementDuplicated(record entities.Record) bool {
	if !u.duplicationFilterEnabled {
		return false
	}
	filter, ok := u.filters[record.Source]
	return ok && filter.Test(measurementKey(record))
}

func (u *Uploader) updateDuplicationFilter(record entities.Record) {
	if !u.duplicationFilterEnabled {
		return
	}
	filter, ok := u.filters[record.Source]
	if !ok {
		filter = bloomFilter.NewWithEstimates(u.filterCapacity, u.duplicationProbability)
		u.filters[record.Source] = filter
	}
	u.resetDuplicationFilter(filter)
	filter.Add(measurementKey(record))
}

func (u *Uploader) resetDuplicationFilter(filter *bloomFilter.BloomFilter) {
	currentFilterUsage := float32(filter.ApproximatedSize()) / float32(u.filterCapacity)
	if currentFilterUsage >= u.maximumPercentageFilterUsage {
		filter.ClearAll()
	}
}

func getValueFromEnvironmentVariable(variableName, defaultValue string) string {
	value, ok := os.LookupEnv(variableName)
	if !ok {
		return defaultValue
	}
	return value
}
