package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nazeru/quickshop-go/pkg/contracts"
	"github.com/nazeru/quickshop-go/pkg/kafka"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma-separated Kafka brokers")
	eventsCmd.Flags().String("topic", contracts.TopicOrders, "topic to follow")
	eventsCmd.Flags().String("group", "quickshop-cli", "consumer group id")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow order events published by the storefront and outbox relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		brokers, _ := cmd.Flags().GetString("brokers")
		topic, _ := cmd.Flags().GetString("topic")
		group, _ := cmd.Flags().GetString("group")

		client := kafka.NewClient(brokers)
		if !client.Enabled() {
			return kafka.ErrDisabled
		}
		reader := client.NewReader(topic, group)
		defer reader.Close()

		out := cmd.OutOrStdout()
		return kafka.Consume(commandContext(cmd), reader, func(_ string, value []byte) error {
			printEvent(out, value)
			return nil
		})
	},
}

func printEvent(w io.Writer, value []byte) {
	var evt contracts.Event
	if err := json.Unmarshal(value, &evt); err != nil || evt.Type == "" {
		fmt.Fprintf(w, "? %s\n", value)
		return
	}
	line := fmt.Sprintf("%s %-20s order=%s", evt.CreatedAt.Format("15:04:05"), evt.Type, evt.OrderID)
	if evt.UserID != "" {
		line += " user=" + evt.UserID
	}
	if total, ok := evt.Payload["total"]; ok {
		line += fmt.Sprintf(" total=%v", total)
	}
	fmt.Fprintln(w, line)
}
