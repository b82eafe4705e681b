package events

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
)

type EventPubSubPayload struct {
	ShopId     uint           `json:"shopId"`
	TenantId   string         `json:"tenantId"`
	EventType  string         `json:"eventType"`
	CustomerId *uint          `json:"customerId"`
	EventData  map[string]any `json:"eventData"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PublishCustomEvent fans the event out to the analytics topic for any
// downstream consumer (warehouse loader, notification pipeline).
func PublishCustomEvent(ctx context.Context, event *models.CustomEvent) error {
	if !envBoolDefault("ENABLE_EVENTS_PUBSUB_PUBLISH", false) {
		return nil
	}

	topicName := strings.TrimSpace(os.Getenv("ANALYTICS_EVENTS_TOPIC"))
	if topicName == "" {
		topicName = "analytics-events"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("ANALYTICS_EVENTS_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	var eventData map[string]any
	_ = json.Unmarshal(event.EventDataJSON, &eventData)
	payload := EventPubSubPayload{
		ShopId:     event.ShopId,
		TenantId:   event.TenantId,
		EventType:  event.EventType,
		CustomerId: event.CustomerId,
		EventData:  eventData,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler ingests events pushed by a pubsub subscription, for
// producers that cannot reach the HTTP tracking endpoint directly. Always
// acks: a malformed message would redeliver forever otherwise.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_EVENTS_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload EventPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.ShopId == 0 || payload.TenantId == "" || payload.EventType == "" {
			c.Status(204)
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), payload.TenantId)
		if _, err := models.CreateCustomEvent(ctx, payload.ShopId, payload.EventType, payload.CustomerId, payload.EventData); err != nil {
			config.LogError(config.GetLogger(), "events", "PubSubPushHandler", "create event", payload.ShopId, err)
		} else if payload.CustomerId != nil {
			if err := RefreshEngagementScore(ctx, *payload.CustomerId); err != nil {
				config.LogError(config.GetLogger(), "events", "PubSubPushHandler", "refresh engagement score", *payload.CustomerId, err)
			}
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
