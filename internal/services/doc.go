// Package services contains the application services behind the HTTP
// handlers: workbook upload orchestration and AI class summaries.
package services
