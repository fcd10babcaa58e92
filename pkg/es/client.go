// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
	"healthguide-go/pkg/log"
)

var ESClient *elasticsearch.Client

// outcomeMapping 是分诊结果索引的结构，summary 支持全文检索，其余字段用于过滤。
const outcomeMapping = `{
	"mappings": {
		"properties": {
			"conversation_id": { "type": "keyword" },
			"session_id": { "type": "keyword" },
			"triage_level": { "type": "keyword" },
			"summary": { "type": "text" },
			"next_steps": { "type": "text" },
			"escalated": { "type": "boolean" },
			"red_flag_symptom": { "type": "text" },
			"language": { "type": "keyword" },
			"completed_at": { "type": "date" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(outcomeMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexOutcome 以会话 ID 为文档 ID 写入分诊结果，重复投递会覆盖同一文档。
func IndexOutcome(ctx context.Context, indexName string, doc model.OutcomeDocument) error {
	if ESClient == nil {
		return errors.New("elasticsearch client not initialized")
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.ConversationID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引分诊结果到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index outcome")
	}
	return nil
}

// buildSearchQuery 构建全文检索语句，level 非空时按分诊级别过滤。
func buildSearchQuery(query, level string, size int) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"summary^2", "next_steps", "red_flag_symptom"},
			},
		},
	}
	if level != "" {
		boolQuery["filter"] = []map[string]interface{}{
			{"term": map[string]interface{}{"triage_level": level}},
		}
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  size,
		"sort":  []interface{}{"_score", map[string]interface{}{"completed_at": "desc"}},
	}
}

// SearchOutcomes 在分诊结果索引中按摘要做全文检索。
func SearchOutcomes(ctx context.Context, indexName, query, level string, size int) ([]model.OutcomeSearchHit, error) {
	if ESClient == nil {
		return nil, errors.New("elasticsearch client not initialized")
	}
	if size <= 0 {
		size = 10
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(query, level, size)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.OutcomeDocument `json:"_source"`
				Score  float64               `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.OutcomeSearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.OutcomeSearchHit{
			ConversationID: h.Source.ConversationID,
			TriageLevel:    h.Source.TriageLevel,
			Summary:        h.Source.Summary,
			Escalated:      h.Source.Escalated,
			Score:          h.Score,
		})
	}
	return hits, nil
}
