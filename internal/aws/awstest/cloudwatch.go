package awstest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type FakeCloudWatch struct {
	mu   sync.Mutex
	Data []cwtypes.MetricDatum
}

func (f *FakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Data = append(f.Data, in.MetricData...)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Sum adds up every recorded value for name.
func (f *FakeCloudWatch) Sum(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, d := range f.Data {
		if d.MetricName != nil && *d.MetricName == name && d.Value != nil {
			total += *d.Value
		}
	}
	return total
}
