package main

// Sample is one benchmark input for a text flow.
type Sample struct {
	Name string
	Flow string
	Text string
}

const (
	flowEntities      = "entities"
	flowTextToDiagram = "text-to-diagram"
)

// Samples mixes entity-extraction paragraphs and diagram prompts of
// increasing length.
var Samples = []Sample{
	{
		Name: "ent-tiny",
		Flow: flowEntities,
		Text: "Alice from Berlin met Bob at the Acme office on Monday.",
	},
	{
		Name: "ent-short",
		Flow: flowEntities,
		Text: `The checkout service in eu-west-1 calls the payments API hosted by Stripe,
then writes the order to PostgreSQL and publishes an OrderPlaced event to Kafka.
The fulfilment team in Madrid owns the consumer.`,
	},
	{
		Name: "ent-medium",
		Flow: flowEntities,
		Text: `During the March incident review, Priya Natarajan walked through the timeline.
At 09:12 UTC the CDN in Frankfurt began returning stale assets after a cache purge
issued from the Jenkins pipeline failed halfway. The on-call engineer, Tomás Rivera,
rolled back release 4.18.2 at 09:40 and the error rate on the storefront dropped back
to baseline by 10:05. Follow-ups were assigned to the platform group in Lisbon and
to the vendor, Fastly, who confirmed a regression in their purge API.`,
	},
	{
		Name: "t2d-tiny",
		Flow: flowTextToDiagram,
		Text: "A user logs in and sees the dashboard.",
	},
	{
		Name: "t2d-short",
		Flow: flowTextToDiagram,
		Text: "Flowchart of a pull request: open PR, CI runs tests, reviewer approves or requests changes, changes loop back to CI, approved PRs are merged and deployed.",
	},
	{
		Name: "t2d-medium",
		Flow: flowTextToDiagram,
		Text: `Sequence diagram for an order: the browser sends the cart to the API gateway,
the gateway authenticates with the identity service, forwards the order to the order
service, which reserves stock in the inventory service, charges the card through the
payment service, and finally emits a confirmation email through the notification service.
If the payment fails, the reservation is released and the browser gets an error.`,
	},
}
