package ner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type modelMeta struct {
	Labels            []string
	NumLabels         int
	RequiresTokenType bool
}

// loadModelMeta reads id2label from config.json, with label_map.json taking
// precedence when present.
func loadModelMeta(dir string) (modelMeta, error) {
	meta := modelMeta{}
	configPath := filepath.Join(dir, "config.json")
	if data, err := os.ReadFile(configPath); err == nil {
		var cfg struct {
			NumLabels     int               `json:"num_labels"`
			ID2Label      map[string]string `json:"id2label"`
			Label2ID      map[string]int    `json:"label2id"`
			TypeVocabSize int               `json:"type_vocab_size"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return meta, err
		}
		meta.NumLabels = cfg.NumLabels
		meta.Labels = labelsFromIDMap(cfg.ID2Label)
		if len(meta.Labels) == 0 {
			meta.Labels = labelsFromLabel2ID(cfg.Label2ID)
		}
		meta.RequiresTokenType = cfg.TypeVocabSize > 0
	} else if !os.IsNotExist(err) {
		return meta, err
	}

	labelPath := filepath.Join(dir, "label_map.json")
	if data, err := os.ReadFile(labelPath); err == nil {
		var list []string
		if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
			meta.Labels = list
		} else {
			var idMap map[string]string
			if err := json.Unmarshal(data, &idMap); err == nil {
				meta.Labels = labelsFromIDMap(idMap)
			}
		}
	}

	if len(meta.Labels) > meta.NumLabels {
		meta.NumLabels = len(meta.Labels)
	}
	return meta, nil
}

func labelsFromIDMap(id2label map[string]string) []string {
	if len(id2label) == 0 {
		return nil
	}
	byID := make(map[int]string, len(id2label))
	maxID := -1
	for k, v := range id2label {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			continue
		}
		byID[id] = v
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return nil
	}
	labels := make([]string, maxID+1)
	for id, lbl := range byID {
		labels[id] = lbl
	}
	return labels
}

func labelsFromLabel2ID(label2id map[string]int) []string {
	if len(label2id) == 0 {
		return nil
	}
	id2label := make(map[string]string, len(label2id))
	for lbl, id := range label2id {
		id2label[strconv.Itoa(id)] = lbl
	}
	return labelsFromIDMap(id2label)
}
