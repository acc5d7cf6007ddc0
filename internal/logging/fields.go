package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求 ID、路径与缓存命中状态字段，供 Markdown 路由日志复用。
func RequestFields(requestID, path string, docID int64, docType, cacheStatus string) logrus.Fields {
	return logrus.Fields{
		"request_id":   requestID,
		"path":         path,
		"document_id":  docID,
		"doc_type":     docType,
		"cache_status": cacheStatus,
	}
}

// DocumentFields 用于内容事件与缓存维护日志。
func DocumentFields(action string, docID int64) logrus.Fields {
	return logrus.Fields{
		"action":      action,
		"document_id": docID,
	}
}
