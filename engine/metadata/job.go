package metadata

/** Definition for the body of a job. */
type JobStart func(params interface{}) (interface{}, error)

/** Definition for completion of a job. */
type JobOnComplete func(result interface{})

/** Definition for failure of a job. */
type JobOnFailure func(params interface{}, err error)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief Identifies the job in logs. */
	ID string
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked with the result when the job succeeds. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked with the input params when the job fails. Optional. */
	OnFailure JobOnFailure
	/** @brief Invoked after OnComplete or OnFailure, whatever the outcome. Optional. */
	OnCompletionCallback func()
	/** @brief Data passed to the entry point upon execution. */
	InputParams interface{}
}
