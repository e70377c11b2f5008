package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"gopkg.in/yaml.v2"

	"github.com/spf13/viper"
)

// Заливка условий и подписок из seed-файла в работающий движок. Повторный
// прогон безопасен: регистрация условий идемпотентна, дубли подписок
// отвергаются реестром.

type seedSubscription struct {
	SubscriberType   string                 `mapstructure:"subscriber_type" json:"-"`
	SubscriberID     string                 `mapstructure:"subscriber_id" json:"-"`
	ActionPayload    map[string]interface{} `mapstructure:"action_payload" json:"action_payload,omitempty"`
	Priority         int                    `mapstructure:"priority" json:"priority"`
	Logic            string                 `mapstructure:"logic" json:"logic,omitempty"`
	ValidityDuration int                    `mapstructure:"validity_duration" json:"validity_duration,omitempty"`
	ValidityUnit     string                 `mapstructure:"validity_unit" json:"validity_unit,omitempty"`
	FireMode         string                 `mapstructure:"fire_mode" json:"fire_mode,omitempty"`
}

type seedCondition struct {
	Symbol        string             `mapstructure:"symbol" json:"symbol"`
	Kind          string             `mapstructure:"kind" json:"kind,omitempty"`
	Timeframe     string             `mapstructure:"timeframe" json:"timeframe,omitempty"`
	Indicator     string             `mapstructure:"indicator" json:"indicator,omitempty"`
	Operator      string             `mapstructure:"operator" json:"operator,omitempty"`
	Value         *float64           `mapstructure:"value" json:"value,omitempty"`
	Period        *int               `mapstructure:"period" json:"period,omitempty"`
	Lower         *float64           `mapstructure:"lower" json:"lower,omitempty"`
	Upper         *float64           `mapstructure:"upper" json:"upper,omitempty"`
	Level         *float64           `mapstructure:"level" json:"level,omitempty"`
	Threshold     *float64           `mapstructure:"threshold" json:"threshold,omitempty"`
	Subscriptions []seedSubscription `mapstructure:"subscriptions" json:"-"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) post(path string, body interface{}, headers map[string]string) (map[string]interface{}, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal body")
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(bs))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusConflict {
		return nil, nil // дубль подписки, штатно при повторном прогоне
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("%s: status %d: %s", path, resp.StatusCode, raw)
	}
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return envelope.Data, nil
}

func main() {
	viper.SetConfigName("seed")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("configs")
	viper.SetDefault("api", "http://localhost:8080")
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var conditions []seedCondition
	if err := viper.UnmarshalKey("conditions", &conditions); err != nil {
		panic(fmt.Errorf("decode conditions: %w", err))
	}
	if len(conditions) == 0 {
		panic("has no conditions in seed config")
	}

	if viper.GetBool("dry_run") {
		bs, err := yaml.Marshal(conditions)
		if err != nil {
			panic(errors.Wrap(err, "marshal seed plan"))
		}
		fmt.Println(string(bs))
		return
	}

	c := &client{base: viper.GetString("api"), http: &http.Client{Timeout: 10 * time.Second}}
	for _, cond := range conditions {
		data, err := c.post("/api/v1/conditions", cond, nil)
		if err != nil {
			panic(fmt.Errorf("register %s: %w", cond.Symbol, err))
		}
		conditionID, _ := data["condition_id"].(string)
		fmt.Printf("condition %s -> %s (%v)\n", cond.Symbol, conditionID, data["status"])

		for _, sub := range cond.Subscriptions {
			headers := map[string]string{
				"X-Subscriber-Type": sub.SubscriberType,
				"X-Subscriber-Id":   sub.SubscriberID,
			}
			data, err := c.post("/api/v1/conditions/"+conditionID+"/subscriptions", sub, headers)
			if err != nil {
				panic(fmt.Errorf("subscribe %s/%s: %w", sub.SubscriberType, sub.SubscriberID, err))
			}
			if data == nil {
				fmt.Printf("  sub %s/%s already exists\n", sub.SubscriberType, sub.SubscriberID)
				continue
			}
			fmt.Printf("  sub %s/%s -> %v\n", sub.SubscriberType, sub.SubscriberID, data["subscription_id"])
		}
	}
	fmt.Println("done")
}
