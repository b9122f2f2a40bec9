// Package models holds the shared data model for the exploitation core.
// Types here are plain values with no behavior beyond validation and small
// derivations, so every component can exchange them without import cycles.
package models

import "time"

// CampaignStage identifies where a campaign is in the recon → probe →
// exploit pipeline.
type CampaignStage string

// Campaign stages.
const (
	StageCreated    CampaignStage = "created"
	StageRecon      CampaignStage = "recon"
	StageProbing    CampaignStage = "probing"
	StageExploiting CampaignStage = "exploiting"
	StageComplete   CampaignStage = "complete"
)

// TargetProtocol selects how attack payloads reach the target.
type TargetProtocol string

// Supported target protocols.
const (
	ProtocolHTTP      TargetProtocol = "http"
	ProtocolWebSocket TargetProtocol = "ws"
)

// Campaign is one attempt to exploit one target. Created by the external
// workflow; the exploitation core reads it and only ever updates its stage.
type Campaign struct {
	ID             string         `json:"campaign_id"`
	TargetURL      string         `json:"target_url"`
	TargetProtocol TargetProtocol `json:"target_protocol"`
	ReconScanID    string         `json:"recon_scan_id,omitempty"`
	ProbeScanID    string         `json:"probe_scan_id,omitempty"`
	Stage          CampaignStage  `json:"stage"`
	Owner          string         `json:"owner"`
	CreatedAt      time.Time      `json:"created_at"`
}
