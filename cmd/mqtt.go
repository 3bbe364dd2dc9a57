// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	mqttBroker      string
	mqttUsername    string
	mqttTopicPrefix string
	mqttClientID    string
)

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Bridge the monitor's controls to an MQTT broker",
	Long: `Publish the monitor's status, variables and preset feedback as retained
MQTT topics and accept presses, actions and commands on command topics.

Topics (below --topic-prefix, default lilliput/<label>):
  availability          online / offline
  status                {"status":"ok","message":""}
  variable/<name>       current value
  preset/<id>/active    ON / OFF
  preset/<id>/press     press the preset
  action/<id>/set       run the action with a JSON options payload
  command               send the payload as a custom command

With --username the password is read from the LILLIPUT_PASSWORD environment
variable, or prompted interactively if not set.`,
	RunE: runMQTT,
}

func init() {
	rootCmd.AddCommand(mqttCmd)
	mqttCmd.Flags().StringVar(&mqttBroker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	mqttCmd.Flags().StringVar(&mqttUsername, "username", "", "MQTT username")
	mqttCmd.Flags().StringVar(&mqttTopicPrefix, "topic-prefix", "", "Topic prefix (default lilliput/<label>)")
	mqttCmd.Flags().StringVar(&mqttClientID, "client-id", "", "MQTT client id (default random)")
}

func runMQTT(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password := ""
	if mqttUsername != "" {
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}

	prefix := mqttTopicPrefix
	if prefix == "" {
		prefix = "lilliput/" + cfg.Label
	}
	clientID := mqttClientID
	if clientID == "" {
		clientID = "lilliput-bridge-" + uuid.New().String()[:8]
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s := startSession(ctx, cfg.Label)
	defer s.close()
	s.watchReload(ctx)

	mb := newMQTTBridge(s.registry, s.instance.Ready, prefix)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(mqttBroker)
	if mqttUsername != "" {
		opts.SetUsername(mqttUsername)
		opts.SetPassword(password)
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(mb.AvailabilityTopic(), "offline", 0, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info().Str("broker", mqttBroker).Str("prefix", prefix).Msg("Connected to MQTT broker")
		if err := mb.onConnect(ctx, &mqttManager{client: c}); err != nil {
			log.Error().Err(err).Msg("MQTT setup failed")
		}
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		log.Warn().Err(token.Error()).Msg("Could not connect to MQTT initially, will retry in background")
	}

	// A rejected config is published as BadConfig
	_ = s.init(cfg)

	go mb.run(ctx)
	<-ctx.Done()

	if client.IsConnected() {
		manager := &mqttManager{client: client}
		if err := manager.Publish(mb.AvailabilityTopic(), 0, true, "offline"); err != nil {
			log.Warn().Err(err).Msg("Failed to publish offline availability")
		}
	}
	client.Disconnect(250)
	return nil
}
