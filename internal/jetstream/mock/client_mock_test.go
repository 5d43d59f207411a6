package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Example service that uses the JetStream client
type ExampleService struct {
	client *ClientMock
}

// SetupForwardQueue demonstrates provisioning a stream and pull consumer
func (s *ExampleService) SetupForwardQueue(ctx context.Context) error {
	streamCfg := &nats.StreamConfig{
		Name:     "FORWARDS",
		Subjects: []string{"v1.forward.>"},
	}
	consumerCfg := &nats.ConsumerConfig{
		Durable:       "forward_dispatch_consumer",
		FilterSubject: "v1.forward.>",
	}

	err := s.client.SetupStream(ctx, streamCfg)
	if err != nil {
		return err
	}

	err = s.client.SetupConsumer(ctx, "FORWARDS", consumerCfg)
	if err != nil {
		return err
	}

	_, err = s.client.SubscribePull("FORWARDS", "v1.forward.>", "forward_dispatch_consumer")
	return err
}

// PublishJob demonstrates publishing a dispatch job
func (s *ExampleService) PublishJob(payload []byte) error {
	return s.client.Publish("v1.forward.scope-1", payload, nil)
}

// TestClientMock demonstrates how to use the ClientMock
func TestClientMock(t *testing.T) {
	mockClient := new(ClientMock)

	service := &ExampleService{
		client: mockClient,
	}

	mockClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, "FORWARDS", mock.AnythingOfType("*nats.ConsumerConfig")).Return(nil)
	mockClient.On("SubscribePull", "FORWARDS", "v1.forward.>", "forward_dispatch_consumer").Return(MockSubscription(), nil)
	mockClient.On("Publish", "v1.forward.scope-1", []byte("test message"), mock.Anything).Return(nil)

	err := service.SetupForwardQueue(context.Background())
	assert.NoError(t, err)

	err = service.PublishJob([]byte("test message"))
	assert.NoError(t, err)

	mockClient.AssertExpectations(t)
}

// TestClientMockErrors demonstrates error handling with the mock
func TestClientMockErrors(t *testing.T) {
	mockClient := new(ClientMock)

	service := &ExampleService{
		client: mockClient,
	}

	expectedErr := errors.New("stream setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(expectedErr)

	err := service.SetupForwardQueue(context.Background())
	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)

	mockClient.AssertExpectations(t)
}
