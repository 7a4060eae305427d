// Package hotplug watches udev netlink events for USB devices being attached
// or detached. Smart-card readers forget vendor settings such as the disabled
// buzzer when they lose power, so the daemon uses these events to re-apply
// reader preparation without requiring udev rules.
package hotplug
