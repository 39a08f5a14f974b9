package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "astrobridge"

// Topics builds the astrobridge topic hierarchy under a configurable prefix.
//
// The host application publishes domain notifications and command results;
// astrobridge publishes commands and its own status:
//
//	{prefix}/system/status                  bridge online/offline (retained, LWT)
//	{prefix}/equipment/{device}/{event}     device connect/disconnect and state
//	{prefix}/sequence/{event}               sequencer notifications
//	{prefix}/image/{event}                  image saved, image prepared
//	{prefix}/general/{event}                anything without a better home
//	{prefix}/info/{device}                  device info snapshots
//	{prefix}/telemetry/{device}             high-rate numeric samples
//	{prefix}/command/{device}/{action}      command to the host
//	{prefix}/command/{device}/abort         abort the device's current command
//	{prefix}/command/result/{request_id}    command completion
//	{prefix}/command/progress/{request_id}  command progress
//
// Using these helpers keeps topic naming consistent across the codebase:
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	topics.Command("mount", "slew") // "astrobridge/command/mount/slew"
type Topics struct {
	Prefix string
}

// NewTopics returns a topic builder for prefix, falling back to
// DefaultTopicPrefix when prefix is empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the bridge status topic.
//
// Example: astrobridge/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// =============================================================================
// Host Notification Topics
// =============================================================================

// Equipment returns the topic for a device event.
//
// Example: astrobridge/equipment/camera/connected
func (t Topics) Equipment(device, event string) string {
	return fmt.Sprintf("%s/equipment/%s/%s", t.prefix(), device, event)
}

// Sequence returns the topic for a sequencer event.
//
// Example: astrobridge/sequence/finished
func (t Topics) Sequence(event string) string {
	return fmt.Sprintf("%s/sequence/%s", t.prefix(), event)
}

// Image returns the topic for an imaging event.
//
// Example: astrobridge/image/saved
func (t Topics) Image(event string) string {
	return fmt.Sprintf("%s/image/%s", t.prefix(), event)
}

// General returns the topic for a general-purpose event.
//
// Example: astrobridge/general/profile-changed
func (t Topics) General(event string) string {
	return fmt.Sprintf("%s/general/%s", t.prefix(), event)
}

// Info returns the topic for a device info snapshot.
//
// Example: astrobridge/info/focuser
func (t Topics) Info(device string) string {
	return fmt.Sprintf("%s/info/%s", t.prefix(), device)
}

// Telemetry returns the topic for device telemetry samples.
//
// Example: astrobridge/telemetry/camera
func (t Topics) Telemetry(device string) string {
	return fmt.Sprintf("%s/telemetry/%s", t.prefix(), device)
}

// =============================================================================
// Command Topics
// =============================================================================

// Command returns the topic a device command is published on.
//
// Example: astrobridge/command/dome/open-shutter
func (t Topics) Command(device, action string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), device, action)
}

// CommandAbort returns the topic that aborts a device's running command.
//
// Example: astrobridge/command/dome/abort
func (t Topics) CommandAbort(device string) string {
	return t.Command(device, "abort")
}

// CommandResult returns the completion topic for a request.
//
// Example: astrobridge/command/result/4f1c...
func (t Topics) CommandResult(requestID string) string {
	return fmt.Sprintf("%s/command/result/%s", t.prefix(), requestID)
}

// CommandProgress returns the progress topic for a request.
//
// Example: astrobridge/command/progress/4f1c...
func (t Topics) CommandProgress(requestID string) string {
	return fmt.Sprintf("%s/command/progress/%s", t.prefix(), requestID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllEquipment matches every device event.
//
// Pattern: astrobridge/equipment/+/+
func (t Topics) AllEquipment() string {
	return fmt.Sprintf("%s/equipment/+/+", t.prefix())
}

// AllSequence matches every sequencer event.
//
// Pattern: astrobridge/sequence/+
func (t Topics) AllSequence() string {
	return fmt.Sprintf("%s/sequence/+", t.prefix())
}

// AllImage matches every imaging event.
//
// Pattern: astrobridge/image/+
func (t Topics) AllImage() string {
	return fmt.Sprintf("%s/image/+", t.prefix())
}

// AllGeneral matches every general-purpose event.
//
// Pattern: astrobridge/general/+
func (t Topics) AllGeneral() string {
	return fmt.Sprintf("%s/general/+", t.prefix())
}

// AllInfo matches every device info snapshot.
//
// Pattern: astrobridge/info/+
func (t Topics) AllInfo() string {
	return fmt.Sprintf("%s/info/+", t.prefix())
}

// AllTelemetry matches every telemetry stream.
//
// Pattern: astrobridge/telemetry/+
func (t Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/telemetry/+", t.prefix())
}

// AllCommandResults matches every command completion.
//
// Pattern: astrobridge/command/result/+
func (t Topics) AllCommandResults() string {
	return fmt.Sprintf("%s/command/result/+", t.prefix())
}

// AllCommandProgress matches every command progress report.
//
// Pattern: astrobridge/command/progress/+
func (t Topics) AllCommandProgress() string {
	return fmt.Sprintf("%s/command/progress/+", t.prefix())
}

// AllTopics matches everything under the prefix.
// Use with caution - this receives ALL traffic.
//
// Pattern: astrobridge/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.prefix())
}
