package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供命名空间、缓存键与源地址字段，供抓取与缓存写入日志复用。
func FetchFields(namespace, key, url string) logrus.Fields {
	return logrus.Fields{
		"action":    "fetch",
		"namespace": namespace,
		"key":       key,
		"url":       url,
	}
}

// RequestFields 描述一次 HTTP 图片请求的结果。
func RequestFields(namespace, requestID, policy string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":     "serve",
		"namespace":  namespace,
		"request_id": requestID,
		"policy":     policy,
		"cache_hit":  cacheHit,
	}
}
