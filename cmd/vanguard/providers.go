package main

// Blank imports register notifier providers with the notifier registry.
import (
	_ "github.com/vanguard-ai/vanguard/internal/adapter/slack"
)
